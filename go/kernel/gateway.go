package kernel

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/trace"
)

// Syscall is the trap entry: caller has executed a syscall instruction with
// num in eax and args in edx, ecx, ebx, edi, esi. The result word is
// returned and also stored in the caller's saved eax.
//
// Errors other than result words are reported separately:
// ErrBlocked when the caller is now waiting in ipc_recv, *Fault when the
// caller was killed for a bad pointer, ErrNoCaller when caller is not a
// live environment.
func (k *Kernel) Syscall(caller models.EnvID, num uint32, args ...uint32) (int32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	cur, err := k.get(caller)
	if err != nil {
		return 0, errors.Wrapf(ErrNoCaller, "syscall %s from %s", Num(num), caller)
	}
	var regs [5]uint32
	copy(regs[:], args)
	cur.Tf.SetSyscall(num, regs)
	regs = cur.Tf.SyscallArgs()

	var ret int32
	call, err := k.Decode(num, regs)
	if err == nil {
		var val uint32
		val, err = k.dispatch(cur, call)
		ret = int32(val)
	}
	switch e := err.(type) {
	case nil:
	case models.Errno:
		ret = int32(e)
		err = nil
	case *Fault:
	default:
		if err != ErrBlocked {
			// handlers only fail with the errors above
			panic(models.Bugf("%s: unexpected error: %v", Num(num), err))
		}
	}
	k.account(caller, num, regs, call, ret, err)
	if err != nil {
		return ret, err
	}
	// env_destroy(0) frees the caller's own slot
	if cur.ID == caller && cur.Status != models.ENV_FREE {
		cur.Tf.Regs.Eax = uint32(ret)
	}
	return ret, nil
}

// account traces and counts one finished syscall
func (k *Kernel) account(caller models.EnvID, num uint32, regs [5]uint32, call Call, ret int32, err error) {
	result := "ok"
	switch {
	case err == ErrBlocked:
		result = "blocked"
	case err != nil:
		result = "fault"
	case ret < 0:
		result = models.Errno(ret).Name()
	}
	k.metrics.Syscalls.WithLabelValues(Num(num).String(), result).Inc()
	if k.tracer != nil {
		n := len(regs)
		if call != nil {
			n = len(syscalls[num].In)
		}
		k.record(&trace.OpSyscall{
			Seq: k.nextSeq(), Env: int32(caller), Num: num,
			NArgs: uint8(n), Args: append([]uint32(nil), regs[:n]...), Ret: ret,
		})
	}
	if k.strace != nil {
		k.strace.Print(k, caller, num, call, ret, err)
	}
}

// dispatch runs the handler for call on behalf of cur.
func (k *Kernel) dispatch(cur *Env, call Call) (uint32, error) {
	switch c := call.(type) {
	case *Cputs:
		return 0, k.sysCputs(cur, c.S, c.Len)
	case *Cgetc:
		return uint32(k.console.Getc()), nil
	case *Getenvid:
		return uint32(cur.ID), nil
	case *EnvDestroy:
		return 0, k.sysEnvDestroy(cur, c.Env)
	case *PageAlloc:
		return 0, k.sysPageAlloc(cur, c.Env, uint32(c.Va), c.Perm)
	case *PageMap:
		return 0, k.sysPageMap(cur, c.SrcEnv, uint32(c.SrcVa), c.DstEnv, uint32(c.DstVa), c.Perm)
	case *PageUnmap:
		return 0, k.sysPageUnmap(cur, c.Env, uint32(c.Va))
	case *Exofork:
		id, err := k.sysExofork(cur)
		return uint32(id), err
	case *EnvSetStatus:
		return 0, k.sysEnvSetStatus(cur, c.Env, c.Status)
	case *EnvSetTrapframe:
		return 0, k.sysEnvSetTrapframe(cur, c.Env, c.Tf)
	case *EnvSetPgfaultUpcall:
		return 0, k.sysEnvSetPgfaultUpcall(cur, c.Env, uint32(c.Func))
	case *Yield:
		// the scheduler sees the call and picks the next env
		return 0, nil
	case *IpcTrySend:
		return 0, k.sysIpcTrySend(cur, c.Env, c.Value, uint32(c.SrcVa), c.Perm)
	case *IpcRecv:
		return 0, k.sysIpcRecv(cur, uint32(c.DstVa))
	case *TimeMsec:
		return uint32(k.clock().Sub(k.boot).Milliseconds()), nil
	}
	panic(models.Bugf("no handler for %T", call))
}
