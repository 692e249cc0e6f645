package ulib

import (
	"fmt"

	"github.com/lunixbochs/exocorn/go/models"
)

// SendPolicy bounds how often Send retries a receiver that is not yet
// waiting. MaxRetries 0 retries forever.
type SendPolicy struct {
	MaxRetries int
}

// Send delivers val, and the page at pg if pg is not models.NoPage, to
// env to. It yields between attempts while the receiver is not ready.
// Any other failure panics: a send can only succeed or kill the sender.
// Retries are bounded by the kernel's max_send_retries.
func Send(s Sys, to models.EnvID, val uint32, pg uint32, perm models.Perm) {
	SendPolicy{MaxRetries: s.Config().MaxSendRetries}.Send(s, to, val, pg, perm)
}

func (sp SendPolicy) Send(s Sys, to models.EnvID, val uint32, pg uint32, perm models.Perm) {
	for try := 0; ; try++ {
		err := IpcTrySend(s, to, val, pg, perm)
		if err == nil {
			return
		}
		if err != models.E_IPC_NOT_RECV {
			Panic(s, "ipc_send to %s: %v", to, err)
		}
		if sp.MaxRetries > 0 && try+1 >= sp.MaxRetries {
			Panic(s, "ipc_send to %s: receiver not ready after %d tries", to, try+1)
		}
		Yield(s)
	}
}

// Recv waits for a message, mapping the sent page at pg if pg is not
// models.NoPage. On error from and perm are zero.
func Recv(s Sys, pg uint32) (val uint32, from models.EnvID, perm models.Perm, err error) {
	if err := IpcRecv(s, pg); err != nil {
		return 0, 0, 0, err
	}
	env := s.Env()
	return env.Ipc.Value, env.Ipc.From, env.Ipc.Perm, nil
}

// UserPanic is the panic value of Panic.
type UserPanic struct {
	Env models.EnvID
	Msg string
}

func (u *UserPanic) Error() string {
	return fmt.Sprintf("[%s] user panic: %s", u.Env, u.Msg)
}

// Panic prints a message and kills the calling environment.
func Panic(s Sys, format string, a ...interface{}) {
	up := &UserPanic{Env: s.Env().ID, Msg: fmt.Sprintf(format, a...)}
	Cputs(s, up.Error()+"\n")
	panic(up)
}

func Cprintf(s Sys, format string, a ...interface{}) {
	Cputs(s, fmt.Sprintf(format, a...))
}

// Exit destroys the calling environment and does not return.
func Exit(s Sys) {
	EnvDestroy(s, 0)
	panic("env_destroy(0) returned")
}
