package user

import (
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/proc"
	"github.com/lunixbochs/exocorn/go/ulib"
)

// numbers fed into the sieve; 0 ends the pipeline
const primesLimit = 30

// Primes feeds 2..primesLimit into a pipeline with one environment per
// prime found.
func Primes(p *proc.Proc) {
	child, err := ulib.Spawn(p, "primes.stage")
	if err != nil {
		ulib.Panic(p, "fork: %v", err)
	}
	for i := uint32(2); i <= primesLimit; i++ {
		ulib.Send(p, child, i, models.NoPage, 0)
	}
	ulib.Send(p, child, 0, models.NoPage, 0)
}

func primeStage(p *proc.Proc) {
	prime, _, _, err := ulib.Recv(p, models.NoPage)
	if err != nil || prime == 0 {
		return
	}
	ulib.Cprintf(p, "%d\n", prime)
	var next models.EnvID
	for {
		i, _, _, err := ulib.Recv(p, models.NoPage)
		if err != nil {
			ulib.Panic(p, "recv: %v", err)
		}
		if i == 0 {
			if next != 0 {
				ulib.Send(p, next, 0, models.NoPage, 0)
			}
			return
		}
		if i%prime == 0 {
			continue
		}
		if next == 0 {
			if next, err = ulib.Spawn(p, "primes.stage"); err != nil {
				ulib.Panic(p, "fork: %v", err)
			}
		}
		ulib.Send(p, next, i, models.NoPage, 0)
	}
}
