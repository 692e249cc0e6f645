package kernel

import (
	"github.com/lunixbochs/exocorn/go/models"
)

// sysPageAlloc maps a fresh zeroed frame at va in envid's address space,
// replacing whatever was there.
func (k *Kernel) sysPageAlloc(cur *Env, envid models.EnvID, va uint32, perm models.Perm) error {
	if !models.UserPage(va) {
		return models.E_INVAL
	}
	e, err := k.envid2env(cur, envid, true)
	if err != nil {
		return err
	}
	if !perm.ValidUser() {
		return models.E_INVAL
	}
	f, err := k.pool.Alloc()
	if err != nil {
		return err
	}
	// the mapping holds its own reference; if the insert failed ours was
	// the only one and the frame goes straight back to the pool
	err = e.Space.Insert(va, f, perm)
	f.DecRef()
	return err
}

// sysPageMap maps the frame at srcva in srcenvid at dstva in dstenvid.
func (k *Kernel) sysPageMap(cur *Env, srcenvid models.EnvID, srcva uint32, dstenvid models.EnvID, dstva uint32, perm models.Perm) error {
	src, err := k.envid2env(cur, srcenvid, true)
	if err != nil {
		return err
	}
	dst, err := k.envid2env(cur, dstenvid, true)
	if err != nil {
		return err
	}
	if !models.UserPage(srcva) || !models.UserPage(dstva) {
		return models.E_INVAL
	}
	f, srcPerm, ok := src.Space.Lookup(srcva)
	if !ok {
		return models.E_INVAL
	}
	if !perm.Grantable(srcPerm) {
		return models.E_INVAL
	}
	return dst.Space.Insert(dstva, f, perm)
}

// sysPageUnmap is a no-op if nothing is mapped at va.
func (k *Kernel) sysPageUnmap(cur *Env, envid models.EnvID, va uint32) error {
	e, err := k.envid2env(cur, envid, true)
	if err != nil {
		return err
	}
	if !models.UserPage(va) {
		return models.E_INVAL
	}
	e.Space.Remove(va)
	return nil
}
