package user

import (
	"github.com/lunixbochs/exocorn/go/proc"
	"github.com/lunixbochs/exocorn/go/ulib"
)

func Hello(p *proc.Proc) {
	ulib.Cprintf(p, "hello, world\n")
	ulib.Cprintf(p, "i am environment %s\n", p.Env().ID)
}

func Yield(p *proc.Proc) {
	id := ulib.Getenvid(p)
	ulib.Cprintf(p, "Hello, I am environment %s.\n", id)
	for i := 0; i < 5; i++ {
		ulib.Yield(p)
		ulib.Cprintf(p, "Back in environment %s, iteration %d.\n", id, i)
	}
	ulib.Cprintf(p, "All done in environment %s.\n", id)
}

// BuggyHello passes a pointer it does not own to cputs and is killed.
func BuggyHello(p *proc.Proc) {
	p.Syscall(0, 1, 1)
	ulib.Cprintf(p, "still alive\n")
}
