package ulib

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/exocorn/go/models"
)

const puw = models.PTE_P | models.PTE_U | models.PTE_W

// duppage gives child a private copy of the page at va, staged through
// UTEMP in the parent.
func duppage(s Sys, child models.EnvID, va uint32, perm models.Perm) error {
	if err := PageAlloc(s, child, va, puw); err != nil {
		return errors.Wrapf(err, "page_alloc %#x", va)
	}
	if err := PageMap(s, child, va, 0, models.UTEMP, puw); err != nil {
		return errors.Wrapf(err, "page_map %#x", va)
	}
	buf := make([]byte, models.PGSIZE)
	s.Read(va, buf)
	s.Write(models.UTEMP, buf)
	if err := PageUnmap(s, 0, models.UTEMP); err != nil {
		return errors.Wrap(err, "page_unmap UTEMP")
	}
	if !perm.Has(models.PTE_W) {
		// drop write from the child's own mapping
		if err := PageMap(s, child, va, child, va, perm); err != nil {
			return errors.Wrapf(err, "page_map %#x", va)
		}
	}
	return nil
}

// Fork creates a child with a copy of every page the caller has mapped,
// running the program at entry on its own copy of the stack. The child
// inherits the caller's page fault upcall.
func Fork(s Sys, entry uint32) (models.EnvID, error) {
	child, err := Exofork(s)
	if err != nil {
		return 0, errors.Wrap(err, "exofork")
	}
	for _, m := range s.Pages() {
		if m.VA == models.UTEMP {
			continue
		}
		if err := duppage(s, child, m.VA, m.Perm&models.PTE_SYSCALL); err != nil {
			EnvDestroy(s, child)
			return 0, err
		}
	}
	tf := s.EnvOf(child).Tf
	tf.Eip = entry
	tf.Esp = models.USTACKTOP
	if err := EnvSetTrapframe(s, child, &tf); err != nil {
		EnvDestroy(s, child)
		return 0, errors.Wrap(err, "env_set_trapframe")
	}
	if upcall := s.Env().Upcall; upcall != 0 {
		if err := EnvSetPgfaultUpcall(s, child, upcall); err != nil {
			EnvDestroy(s, child)
			return 0, errors.Wrap(err, "env_set_pgfault_upcall")
		}
	}
	if err := EnvSetStatus(s, child, models.ENV_RUNNABLE); err != nil {
		EnvDestroy(s, child)
		return 0, errors.Wrap(err, "env_set_status")
	}
	return child, nil
}

// Spawn forks the registered program name.
func Spawn(s Sys, name string) (models.EnvID, error) {
	return Fork(s, s.Entry(name))
}
