package proc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/models"
)

// Program is the user code of an environment. It only talks to the kernel
// through the Proc it is given.
type Program func(p *Proc)

// programs are laid out one page apart in a pretend text segment
const entryOffset = 0x20

// Machine is a uniprocessor: exactly one environment's goroutine runs at a
// time, and it only gives up the CPU inside a syscall or by returning.
type Machine struct {
	k   *kernel.Kernel
	log *zap.Logger

	mu      sync.Mutex
	progs   map[uint32]Program
	entries map[string]uint32
	names   map[uint32]string

	procs map[models.EnvID]*Proc
	trap  chan trap
	group errgroup.Group
}

// a proc hands the CPU back with a trap
type trap struct {
	p   *Proc
	bug interface{}
}

func New(k *kernel.Kernel, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		k:       k,
		log:     log,
		progs:   make(map[uint32]Program),
		entries: make(map[string]uint32),
		names:   make(map[uint32]string),
		procs:   make(map[models.EnvID]*Proc),
		trap:    make(chan trap),
	}
}

func (m *Machine) Kernel() *kernel.Kernel { return m.k }

// Register makes prog available under name and returns its entry address.
// Registering a name again returns the existing entry.
func (m *Machine) Register(name string, prog Program) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[name]; ok {
		return entry
	}
	entry := uint32(models.UTEXT + len(m.entries)*models.PGSIZE + entryOffset)
	m.entries[name] = entry
	m.names[entry] = name
	m.progs[entry] = prog
	return entry
}

func (m *Machine) Entry(name string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[name]
	return entry, ok
}

// Name returns the program name for an entry address.
func (m *Machine) Name(entry uint32) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.names[entry]; ok {
		return name
	}
	return fmt.Sprintf("%#x", entry)
}

func (m *Machine) Programs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Spawn creates a runnable root environment running the named program.
func (m *Machine) Spawn(name string) (models.EnvID, error) {
	entry, ok := m.Entry(name)
	if !ok {
		return 0, errors.Errorf("no program named %q", name)
	}
	id, err := m.k.EnvCreate(entry)
	return id, errors.Wrapf(err, "spawning %s", name)
}

// proc finds or starts the goroutine for id. A new env runs the program
// named by its saved eip.
func (m *Machine) proc(id models.EnvID) (*Proc, error) {
	if p, ok := m.procs[id]; ok {
		return p, nil
	}
	env, ok := m.k.Env(id)
	if !ok {
		return nil, kernel.ErrNoCaller
	}
	m.mu.Lock()
	prog, ok := m.progs[env.Tf.Eip]
	m.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("no program at eip %#x", env.Tf.Eip)
	}
	p := &Proc{m: m, id: id, entry: env.Tf.Eip, run: make(chan struct{}), kill: make(chan struct{})}
	m.procs[id] = p
	m.group.Go(func() error {
		p.main(prog)
		return nil
	})
	return p, nil
}

// reap kills parked goroutines whose environments were destroyed.
func (m *Machine) reap() {
	for id, p := range m.procs {
		if !m.k.Alive(id) {
			delete(m.procs, id)
			close(p.kill)
		}
	}
}

// Run schedules environments round-robin until none is runnable or ctx is
// done. A kernel bug raised in any environment is re-panicked here.
func (m *Machine) Run(ctx context.Context) error {
	defer func() {
		m.reapAll()
		m.group.Wait()
	}()
	var last models.EnvID
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		id, ok := m.k.NextRunnable(last)
		if !ok {
			m.halt()
			return nil
		}
		last = id
		p, err := m.proc(id)
		if err != nil {
			m.log.Warn("cannot run env", zap.Stringer("env", id), zap.Error(err))
			m.k.Destroy(id)
			continue
		}
		if err := m.k.Run(id); err != nil {
			continue
		}
		p.run <- struct{}{}
		t := <-m.trap
		if t.bug != nil {
			panic(t.bug)
		}
		if !m.k.Alive(t.p.id) {
			delete(m.procs, t.p.id)
		}
		m.reap()
	}
}

func (m *Machine) reapAll() {
	for id, p := range m.procs {
		delete(m.procs, id)
		close(p.kill)
	}
}

func (m *Machine) halt() {
	var waiting []string
	for _, env := range m.k.Envs() {
		waiting = append(waiting, env.ID.String())
	}
	if len(waiting) > 0 {
		m.log.Info("no runnable environments", zap.Strings("waiting", waiting))
	} else {
		m.log.Info("no runnable environments")
	}
}
