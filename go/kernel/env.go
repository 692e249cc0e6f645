package kernel

import (
	"go.uber.org/zap"

	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/trace"
)

// segment selectors and flags for a fresh user frame
const (
	GD_UT  = 0x18
	GD_UD  = 0x20
	FL_IF  = 0x200
	userPL = 3
)

func (k *Kernel) slot(id models.EnvID) *Env {
	return &k.envs[id.Slot(len(k.envs))]
}

// envid2env resolves id to a live environment. Id 0 means cur. With
// checkperm, the target must be cur or one of its descendants. A stale or
// free handle is reported the same as one that never existed.
func (k *Kernel) envid2env(cur *Env, id models.EnvID, checkperm bool) (*Env, error) {
	if id == 0 {
		return cur, nil
	}
	e := k.slot(id)
	if e.Status == models.ENV_FREE || e.ID != id {
		return nil, models.E_BAD_ENV
	}
	if checkperm && e != cur && !k.descends(e, cur.ID) {
		return nil, models.E_BAD_ENV
	}
	return e, nil
}

// descends walks e's parent chain looking for ancestor.
func (k *Kernel) descends(e *Env, ancestor models.EnvID) bool {
	p := e.Parent
	for i := 0; i < len(k.envs) && p != 0; i++ {
		if p == ancestor {
			return true
		}
		pe := k.slot(p)
		if pe.Status == models.ENV_FREE || pe.ID != p {
			return false
		}
		p = pe.Parent
	}
	return false
}

// envAlloc takes the lowest free slot and gives it a fresh generation.
// The new env is NOT_RUNNABLE with an empty address space.
func (k *Kernel) envAlloc(parent models.EnvID) (*Env, error) {
	idx := -1
	for i := range k.envs {
		if k.envs[i].Status == models.ENV_FREE {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, models.E_NO_FREE_ENV
	}
	e := &k.envs[idx]
	gen := (e.ID + (1 << models.ENVGENSHIFT)) &^ models.EnvID(len(k.envs)-1)
	if gen <= 0 {
		gen = 1 << models.ENVGENSHIFT
	}
	e.Env = models.Env{
		ID:     gen | models.EnvID(idx),
		Parent: parent,
		Status: models.ENV_NOT_RUNNABLE,
	}
	e.Ipc.DstVA = models.NoPage
	tf := &e.Tf
	tf.Ds = GD_UD | userPL
	tf.Es = GD_UD | userPL
	tf.Ss = GD_UD | userPL
	tf.Cs = GD_UT | userPL
	tf.Esp = models.USTACKTOP
	tf.Eflags = FL_IF
	e.Space = mem.NewAddrSpace(k.pool)

	k.live++
	k.metrics.EnvsLive.Set(float64(k.live))
	k.log.Debug("new env", zap.Stringer("env", e.ID), zap.Stringer("parent", parent))
	return e, nil
}

// destroy frees every mapping of e and releases its slot. by is the env
// that asked for it, 0 for the kernel itself.
func (k *Kernel) destroy(e *Env, by models.EnvID) {
	if by == e.ID {
		k.log.Info("exiting gracefully", zap.Stringer("env", e.ID))
	} else {
		k.log.Info("destroying env", zap.Stringer("env", e.ID), zap.Stringer("by", by))
	}
	k.record(&trace.OpExit{Seq: k.nextSeq(), Env: int32(e.ID), By: int32(by)})
	e.Space.Free()
	e.Env = models.Env{ID: e.ID, Status: models.ENV_FREE}
	e.Space = nil
	k.live--
	k.metrics.EnvsLive.Set(float64(k.live))
}

// EnvCreate makes a runnable root environment entering at entry, with one
// writable stack page just below USTACKTOP.
func (k *Kernel) EnvCreate(entry uint32) (models.EnvID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.envAlloc(0)
	if err != nil {
		return 0, err
	}
	f, err := k.pool.Alloc()
	if err == nil {
		err = e.Space.Insert(models.USTACKTOP-models.PGSIZE, f, models.PTE_P|models.PTE_U|models.PTE_W)
		f.DecRef()
	}
	if err != nil {
		k.destroy(e, 0)
		return 0, err
	}
	e.Tf.Eip = entry
	e.Status = models.ENV_RUNNABLE
	k.record(&trace.OpSpawn{Seq: k.nextSeq(), Env: int32(e.ID), Entry: entry})
	return e.ID, nil
}

// get looks up id without a caller, for the runtime and debugger.
func (k *Kernel) get(id models.EnvID) (*Env, error) {
	if id == 0 {
		return nil, models.E_BAD_ENV
	}
	e := k.slot(id)
	if e.Status == models.ENV_FREE || e.ID != id {
		return nil, models.E_BAD_ENV
	}
	return e, nil
}

// Env returns a copy of the environment record.
func (k *Kernel) Env(id models.EnvID) (models.Env, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return models.Env{}, false
	}
	return e.Env, true
}

func (k *Kernel) Alive(id models.EnvID) bool {
	_, ok := k.Env(id)
	return ok
}

func (k *Kernel) Runnable(id models.EnvID) bool {
	e, ok := k.Env(id)
	return ok && e.Status == models.ENV_RUNNABLE
}

// Envs lists every allocated environment in slot order.
func (k *Kernel) Envs() []models.Env {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []models.Env
	for i := range k.envs {
		if k.envs[i].Status != models.ENV_FREE {
			out = append(out, k.envs[i].Env)
		}
	}
	return out
}

func (k *Kernel) Mappings(id models.EnvID) ([]mem.Mapping, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return nil, err
	}
	return e.Space.Mappings(), nil
}

// Lookup returns the frame backing va in id's address space.
func (k *Kernel) Lookup(id models.EnvID, va uint32) (*mem.Frame, models.Perm, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return nil, 0, err
	}
	f, perm, ok := e.Space.Lookup(models.RoundDown(va))
	if !ok {
		return nil, 0, models.E_INVAL
	}
	return f, perm, nil
}

// NextRunnable picks the next RUNNABLE env in slot order after the slot of
// after, wrapping around, and considering after itself last.
func (k *Kernel) NextRunnable(after models.EnvID) (models.EnvID, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := len(k.envs)
	start := 0
	if after != 0 {
		start = after.Slot(n) + 1
	}
	for i := 0; i < n; i++ {
		e := &k.envs[(start+i)%n]
		if e.Status == models.ENV_RUNNABLE {
			return e.ID, true
		}
	}
	return 0, false
}

// Run marks id as dispatched, as env_run does.
func (k *Kernel) Run(id models.EnvID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return err
	}
	if e.Status != models.ENV_RUNNABLE {
		return models.E_INVAL
	}
	e.Runs++
	return nil
}

// Destroy tears down id on behalf of the kernel, e.g. when its program
// returns or panics.
func (k *Kernel) Destroy(id models.EnvID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return err
	}
	k.destroy(e, 0)
	return nil
}

// UserRead copies from id's memory as the user would see it. A bad access
// kills the environment, the same as an unhandled page fault.
func (k *Kernel) UserRead(id models.EnvID, va uint32, p []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return err
	}
	if err := e.Space.Read(va, p); err != nil {
		return k.userFault(e, noSyscall, err)
	}
	return nil
}

func (k *Kernel) UserWrite(id models.EnvID, va uint32, p []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return err
	}
	if err := e.Space.Write(va, p); err != nil {
		return k.userFault(e, noSyscall, err)
	}
	return nil
}

// Peek reads id's memory for a debugger. Unlike UserRead a bad address
// is only reported.
func (k *Kernel) Peek(id models.EnvID, va uint32, p []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return err
	}
	return e.Space.Read(va, p)
}

func (k *Kernel) Poke(id models.EnvID, va uint32, p []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, err := k.get(id)
	if err != nil {
		return err
	}
	return e.Space.Write(va, p)
}

// syscall number recorded for faults outside a syscall
const noSyscall = ^uint32(0)

// userFault turns a memory error into a Fault and destroys e.
func (k *Kernel) userFault(e *Env, num uint32, err error) error {
	merr, ok := err.(*mem.MemError)
	if !ok {
		return err
	}
	fault := &Fault{Env: e.ID, Num: num, Eip: e.Tf.Eip, Err: merr}
	k.log.Warn("user fault", zap.Stringer("env", e.ID), zap.Error(merr), zap.Uint32("eip", e.Tf.Eip))
	k.metrics.Faults.Inc()
	k.record(&trace.OpFault{Seq: k.nextSeq(), Env: int32(e.ID), Num: num, Addr: merr.Addr, Size: uint32(merr.Size), Enum: uint8(merr.Enum)})
	k.destroy(e, 0)
	return fault
}
