package kernel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
)

// ErrBlocked is returned by Syscall when the caller is now waiting in
// ipc_recv. Its result will be written to its trapframe by the sender.
var ErrBlocked = errors.New("caller blocked in ipc_recv")

// ErrNoCaller means the calling environment does not exist (anymore).
var ErrNoCaller = errors.New("calling environment does not exist")

// Fault is a bad user memory access. The environment that caused it has
// already been destroyed when this is returned; it is never a result word.
type Fault struct {
	Env models.EnvID
	Num uint32
	Eip uint32
	Err *mem.MemError
}

func (f *Fault) Error() string {
	if f.Num == noSyscall {
		return fmt.Sprintf("[%s] user fault: %s ip %08x", f.Env, f.Err, f.Eip)
	}
	return fmt.Sprintf("[%s] fault in %s: %s", f.Env, Num(f.Num), f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault unwraps err looking for a *Fault.
func IsFault(err error) (*Fault, bool) {
	f, ok := errors.Cause(err).(*Fault)
	return f, ok
}
