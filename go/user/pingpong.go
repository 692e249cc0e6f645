package user

import (
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/proc"
	"github.com/lunixbochs/exocorn/go/ulib"
)

const pingPongRounds = 10

func PingPong(p *proc.Proc) {
	who, err := ulib.Spawn(p, "pingpong.child")
	if err != nil {
		ulib.Panic(p, "fork: %v", err)
	}
	ulib.Cprintf(p, "send 0 from %s to %s\n", ulib.Getenvid(p), who)
	ulib.Send(p, who, 0, models.NoPage, 0)
	pingPongLoop(p)
}

func pingPongChild(p *proc.Proc) {
	pingPongLoop(p)
}

func pingPongLoop(p *proc.Proc) {
	for {
		i, who, _, err := ulib.Recv(p, models.NoPage)
		if err != nil {
			ulib.Panic(p, "recv: %v", err)
		}
		ulib.Cprintf(p, "%s got %d from %s\n", ulib.Getenvid(p), i, who)
		if i == pingPongRounds {
			return
		}
		i++
		ulib.Send(p, who, i, models.NoPage, 0)
		if i == pingPongRounds {
			return
		}
	}
}
