package kernel

import (
	"github.com/lunixbochs/exocorn/go/models"
)

// sysIpcTrySend delivers value, and the page at srcva if both sides want
// one, to an env blocked in ipc_recv. Anyone may send to anyone. Either the
// whole delivery happens or nothing about the target changes.
func (k *Kernel) sysIpcTrySend(cur *Env, envid models.EnvID, value uint32, srcva uint32, perm models.Perm) error {
	e, err := k.envid2env(cur, envid, false)
	if err != nil {
		return err
	}
	if !e.Ipc.Recving || e.Status != models.ENV_NOT_RUNNABLE {
		return models.E_IPC_NOT_RECV
	}
	var sent models.Perm
	if srcva < models.UTOP && e.Ipc.DstVA < models.UTOP {
		if models.PGOFF(srcva) != 0 {
			return models.E_INVAL
		}
		f, srcPerm, ok := cur.Space.Lookup(srcva)
		if !ok || !perm.Grantable(srcPerm) {
			return models.E_INVAL
		}
		if err := e.Space.Insert(e.Ipc.DstVA, f, perm); err != nil {
			return err
		}
		sent = perm
		k.metrics.IpcSends.WithLabelValues("true").Inc()
	} else {
		k.metrics.IpcSends.WithLabelValues("false").Inc()
	}
	e.Ipc.Recving = false
	e.Ipc.From = cur.ID
	e.Ipc.Value = value
	e.Ipc.Perm = sent
	e.Tf.Regs.Eax = 0
	e.Status = models.ENV_RUNNABLE
	return nil
}

// sysIpcRecv blocks the caller until a send completes. On success it
// returns ErrBlocked and the result is delivered later by the sender.
func (k *Kernel) sysIpcRecv(cur *Env, dstva uint32) error {
	if dstva != models.NoPage && !models.UserPage(dstva) {
		return models.E_INVAL
	}
	cur.Ipc.Recving = true
	cur.Ipc.DstVA = dstva
	cur.Status = models.ENV_NOT_RUNNABLE
	return ErrBlocked
}
