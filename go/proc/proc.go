package proc

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
)

// Proc is the execution context of one environment: the only way user code
// reaches the kernel or its own memory.
type Proc struct {
	m     *Machine
	id    models.EnvID
	entry uint32

	run  chan struct{}
	kill chan struct{}
	// set when the scheduler gave up on us; no trap is owed
	killed bool
}

func (p *Proc) ID() models.EnvID { return p.id }

func (p *Proc) Config() *models.Config { return p.m.k.Config() }

// Log is a logger tagged with this environment.
func (p *Proc) Log() *zap.Logger {
	return p.m.log.With(zap.Stringer("env", p.id))
}

func (p *Proc) main(prog Program) {
	defer func() {
		r := recover()
		if p.killed {
			return
		}
		if r != nil {
			if _, ok := r.(*models.Bug); ok {
				p.m.trap <- trap{p: p, bug: r}
				return
			}
			p.Log().Warn("user panic", zap.String("program", p.m.Name(p.entry)), zap.Any("panic", r))
		}
		// returning from the program is an exit
		p.m.k.Destroy(p.id)
		p.m.trap <- trap{p: p}
	}()
	p.wait()
	prog(p)
}

func (p *Proc) wait() {
	select {
	case <-p.run:
	case <-p.kill:
		p.killed = true
		runtime.Goexit()
	}
}

// park gives the CPU back to the scheduler until we are dispatched again.
func (p *Proc) park() {
	p.m.trap <- trap{p: p}
	p.wait()
}

// exit ends the goroutine of an environment that no longer exists.
func (p *Proc) exit() {
	runtime.Goexit()
}

// Syscall traps into the kernel. It does not return if the environment is
// destroyed or faults, and blocks while the environment is not runnable.
func (p *Proc) Syscall(num kernel.Num, args ...uint32) int32 {
	ret, err := p.m.k.Syscall(p.id, uint32(num), args...)
	if err != nil && err != kernel.ErrBlocked {
		p.exit()
	}
	if !p.m.k.Alive(p.id) {
		p.exit()
	}
	if num == kernel.SYS_YIELD || err == kernel.ErrBlocked || !p.m.k.Runnable(p.id) {
		p.park()
		env, ok := p.m.k.Env(p.id)
		if !ok {
			p.exit()
		}
		// whoever woke us left the result in eax
		ret = int32(env.Tf.Regs.Eax)
	}
	return ret
}

// Env is this environment's own record, as thisenv would show it.
func (p *Proc) Env() models.Env {
	env, ok := p.m.k.Env(p.id)
	if !ok {
		p.exit()
	}
	return env
}

// EnvOf reads another slot of the read-only envs array. The record is
// zero if id does not name a live environment.
func (p *Proc) EnvOf(id models.EnvID) models.Env {
	env, _ := p.m.k.Env(id)
	return env
}

// Pages lists this environment's mappings, the view the user gets of its
// own page tables.
func (p *Proc) Pages() []mem.Mapping {
	maps, err := p.m.k.Mappings(p.id)
	if err != nil {
		p.exit()
	}
	return maps
}

// Read and Write access user memory. A bad access kills the environment.
func (p *Proc) Read(va uint32, b []byte) {
	if err := p.m.k.UserRead(p.id, va, b); err != nil {
		p.exit()
	}
}

func (p *Proc) Write(va uint32, b []byte) {
	if err := p.m.k.UserWrite(p.id, va, b); err != nil {
		p.exit()
	}
}

func (p *Proc) Load(va uint32) uint32 {
	var tmp [4]byte
	p.Read(va, tmp[:])
	return mem.Order.Uint32(tmp[:])
}

func (p *Proc) Store(va, val uint32) {
	var tmp [4]byte
	mem.Order.PutUint32(tmp[:], val)
	p.Write(va, tmp[:])
}

// Entry returns the entry address of a registered program.
func (p *Proc) Entry(name string) uint32 {
	entry, ok := p.m.Entry(name)
	if !ok {
		panic(fmt.Sprintf("no program named %q", name))
	}
	return entry
}
