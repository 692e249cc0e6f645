package kernel

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/trace"
)

// Env is the kernel's environment record: the user-visible part plus the
// address space, which only the kernel touches.
type Env struct {
	models.Env
	Space *mem.AddrSpace
}

// Kernel owns every environment and the physical frame pool. All state is
// guarded by one lock: a syscall runs to completion before the next one
// starts, so the IPC rendezvous needs no other synchronization.
type Kernel struct {
	mu     sync.Mutex
	config *models.Config

	pool *mem.Pool
	envs []Env
	live int

	argjoy  argjoy.Argjoy
	log     *zap.Logger
	console Console
	clock   func() time.Time
	boot    time.Time
	bootID  uuid.UUID
	tracer  *trace.TraceWriter
	metrics *Metrics
	strace  *Strace
	seq     uint64
}

type Option func(k *Kernel)

func WithLogger(log *zap.Logger) Option {
	return func(k *Kernel) { k.log = log }
}

func WithConsole(c Console) Option {
	return func(k *Kernel) { k.console = c }
}

// WithClock replaces time.Now for time_msec.
func WithClock(clock func() time.Time) Option {
	return func(k *Kernel) { k.clock = clock }
}

// WithTrace records every syscall and env lifecycle event to w.
func WithTrace(w *trace.TraceWriter) Option {
	return func(k *Kernel) { k.tracer = w }
}

func WithMetrics(m *Metrics) Option {
	return func(k *Kernel) { k.metrics = m }
}

func New(config *models.Config, opts ...Option) (*Kernel, error) {
	config = config.Init()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid kernel config")
	}
	k := &Kernel{
		config: config,
		pool:   mem.NewPool(config.NPages),
		envs:   make([]Env, config.NEnv),
		log:    zap.NewNop(),
		clock:  time.Now,
		bootID: uuid.New(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.console == nil {
		k.console = &BufConsole{W: config.Output}
	}
	if k.metrics == nil {
		k.metrics = NewMetrics(nil)
	}
	if config.TraceSys {
		k.strace = &Strace{W: config.Output, Color: config.Color, Strsize: config.Strsize}
	}
	k.log = k.log.With(zap.String("boot", k.bootID.String()))
	k.boot = k.clock()
	k.pool.OnChange = func(free int) { k.metrics.FreeFrames.Set(float64(free)) }
	k.metrics.FreeFrames.Set(float64(k.pool.Free()))
	k.argjoy.Register(k.argCodec)
	k.argjoy.Register(argjoy.IntToInt)
	k.log.Debug("kernel booted", zap.Int("nenv", config.NEnv), zap.Int("npages", config.NPages))
	return k, nil
}

func (k *Kernel) Config() *models.Config { return k.config }
func (k *Kernel) BootID() uuid.UUID      { return k.bootID }
func (k *Kernel) Metrics() *Metrics      { return k.metrics }
func (k *Kernel) Console() Console       { return k.console }

// Pool exposes the frame allocator for inspection.
func (k *Kernel) Pool() *mem.Pool { return k.pool }

func (k *Kernel) TraceHeader() trace.TraceHeader {
	return trace.TraceHeader{
		BootID: k.bootID.String(),
		NEnv:   uint32(k.config.NEnv),
		NPages: uint32(k.config.NPages),
	}
}

// StartTrace begins recording to w, headed with this kernel's boot id.
func (k *Kernel) StartTrace(w io.WriteCloser) error {
	tw, err := trace.NewWriter(w, k.TraceHeader())
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.tracer = tw
	k.mu.Unlock()
	return nil
}

// StopTrace flushes and closes the trace, if any.
func (k *Kernel) StopTrace() error {
	k.mu.Lock()
	tw := k.tracer
	k.tracer = nil
	k.mu.Unlock()
	if tw == nil {
		return nil
	}
	k.log.Debug("trace closed", zap.Int("ops", tw.Count()))
	return tw.Close()
}

func (k *Kernel) nextSeq() uint64 {
	k.seq++
	return k.seq
}

func (k *Kernel) record(op trace.Op) {
	if k.tracer == nil {
		return
	}
	if err := k.tracer.Pack(op); err != nil {
		k.log.Warn("trace write failed", zap.Error(err))
	}
}
