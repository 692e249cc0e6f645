package kernel

import (
	"go.uber.org/zap"

	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/trace"
)

// sysExofork creates a child with a copy of the caller's registers, set up
// so that it sees 0 as the result of this syscall. The child has no memory
// and is not runnable until its parent says so.
func (k *Kernel) sysExofork(cur *Env) (models.EnvID, error) {
	e, err := k.envAlloc(cur.ID)
	if err != nil {
		return 0, err
	}
	e.Tf = cur.Tf
	e.Tf.Regs.Eax = 0
	e.Status = models.ENV_NOT_RUNNABLE
	k.record(&trace.OpSpawn{Seq: k.nextSeq(), Env: int32(e.ID), Parent: int32(cur.ID), Entry: e.Tf.Eip})
	return e.ID, nil
}

func (k *Kernel) sysEnvDestroy(cur *Env, envid models.EnvID) error {
	e, err := k.envid2env(cur, envid, true)
	if err != nil {
		return err
	}
	k.destroy(e, cur.ID)
	return nil
}

func (k *Kernel) sysEnvSetStatus(cur *Env, envid models.EnvID, status models.Status) error {
	e, err := k.envid2env(cur, envid, true)
	if err != nil {
		return err
	}
	if status != models.ENV_RUNNABLE && status != models.ENV_NOT_RUNNABLE {
		return models.E_INVAL
	}
	e.Status = status
	return nil
}

// sysEnvSetTrapframe copies a Trapframe from the caller's memory at tf into
// envid. A bad tf pointer kills the caller.
func (k *Kernel) sysEnvSetTrapframe(cur *Env, envid models.EnvID, tf Ptr) error {
	e, err := k.envid2env(cur, envid, true)
	if err != nil {
		return err
	}
	if err := cur.Space.UserMemCheck(uint32(tf), models.TrapframeSize, models.PTE_U); err != nil {
		return k.userFault(cur, uint32(SYS_ENV_SET_TRAPFRAME), err)
	}
	frame, err := models.ReadTrapframe(&mem.MemReader{Space: cur.Space, Addr: uint32(tf)})
	if err != nil {
		panic(models.Bugf("unpacking checked trapframe: %v", err))
	}
	e.Tf = *frame
	k.log.Debug("set trapframe", zap.Stringer("env", e.ID), zap.Uint32("eip", frame.Eip))
	return nil
}

// sysEnvSetPgfaultUpcall does not check that fn is mapped; that happens
// when a fault is delivered.
func (k *Kernel) sysEnvSetPgfaultUpcall(cur *Env, envid models.EnvID, fn uint32) error {
	e, err := k.envid2env(cur, envid, true)
	if err != nil {
		return err
	}
	e.Upcall = fn
	return nil
}

// sysCputs prints len bytes at s. A bad pointer kills the caller.
func (k *Kernel) sysCputs(cur *Env, s Ptr, n Len) error {
	if err := cur.Space.UserMemCheck(uint32(s), uint32(n), models.PTE_U); err != nil {
		return k.userFault(cur, uint32(SYS_CPUTS), err)
	}
	buf := make([]byte, n)
	if err := cur.Space.Read(uint32(s), buf); err != nil {
		panic(models.Bugf("reading checked cputs buffer: %v", err))
	}
	if _, err := k.console.Write(buf); err != nil {
		// the caller's output is lost but the call itself succeeded
		k.log.Warn("console write failed", zap.Stringer("env", cur.ID), zap.Error(err))
	}
	return nil
}
