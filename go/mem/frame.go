package mem

import (
	"sync"
	"sync/atomic"

	"github.com/lunixbochs/exocorn/go/models"
)

// Frame is one physical page. Every page table entry that maps the frame
// holds a reference, and so does whoever allocated it until they DecRef.
// The frame goes back to its pool exactly when the count drops to zero.
type Frame struct {
	pfn  uint32
	refs int32
	data []byte
	pool *Pool
}

func (f *Frame) PFN() uint32  { return f.pfn }
func (f *Frame) Refs() int    { return int(atomic.LoadInt32(&f.refs)) }
func (f *Frame) Data() []byte { return f.data }

func (f *Frame) IncRef() {
	if atomic.AddInt32(&f.refs, 1) <= 1 {
		panic(models.Bugf("incref on free frame %d", f.pfn))
	}
}

func (f *Frame) DecRef() {
	c := atomic.AddInt32(&f.refs, -1)
	if c < 0 {
		panic(models.Bugf("frame %d refcount underflow", f.pfn))
	}
	if c == 0 {
		f.pool.put(f)
	}
}

// Pool is the physical frame allocator.
type Pool struct {
	mu     sync.Mutex
	frames []Frame
	free   []uint32
	// called with the new free count after every alloc/free
	OnChange func(free int)
}

func NewPool(npages int) *Pool {
	p := &Pool{
		frames: make([]Frame, npages),
		free:   make([]uint32, 0, npages),
	}
	// hand out low frames first
	for i := npages - 1; i >= 0; i-- {
		p.frames[i] = Frame{pfn: uint32(i), pool: p}
		p.free = append(p.free, uint32(i))
	}
	return p
}

// Alloc returns a zero-filled frame holding one reference owned by the caller.
func (p *Pool) Alloc() (*Frame, error) {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return nil, models.E_NO_MEM
	}
	pfn := p.free[n-1]
	p.free = p.free[:n-1]
	f := &p.frames[pfn]
	if f.data == nil {
		f.data = make([]byte, models.PGSIZE)
	} else {
		for i := range f.data {
			f.data[i] = 0
		}
	}
	atomic.StoreInt32(&f.refs, 1)
	cb := p.OnChange
	p.mu.Unlock()
	if cb != nil {
		cb(n - 1)
	}
	return f, nil
}

func (p *Pool) put(f *Frame) {
	p.mu.Lock()
	if len(p.free) >= len(p.frames) {
		p.mu.Unlock()
		panic(models.Bugf("frame %d freed into a full pool", f.pfn))
	}
	p.free = append(p.free, f.pfn)
	n := len(p.free)
	cb := p.OnChange
	p.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func (p *Pool) Size() int {
	return len(p.frames)
}

// Frame looks up a frame by number, for debugging and tests.
func (p *Pool) Frame(pfn uint32) *Frame {
	if int(pfn) >= len(p.frames) {
		return nil
	}
	return &p.frames[pfn]
}
