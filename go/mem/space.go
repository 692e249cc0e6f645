package mem

import (
	"sort"

	"github.com/lunixbochs/exocorn/go/models"
)

type PTE struct {
	Frame *Frame
	Perm  models.Perm
}

func (p *PTE) Present() bool {
	return p.Frame != nil && p.Perm.Has(models.PTE_P)
}

// second level table; backed by a frame from the pool so that running out
// of memory can happen while inserting a mapping
type pageTable struct {
	frame *Frame
	ents  [models.NPTENTRIES]PTE
}

// AddrSpace is one environment's page directory.
type AddrSpace struct {
	pool *Pool
	dir  map[uint32]*pageTable
}

func NewAddrSpace(pool *Pool) *AddrSpace {
	return &AddrSpace{pool: pool, dir: make(map[uint32]*pageTable)}
}

// returns the entry for va, allocating the page table if create is set
func (as *AddrSpace) walk(va uint32, create bool) (*PTE, error) {
	pt, ok := as.dir[models.PDX(va)]
	if !ok {
		if !create {
			return nil, nil
		}
		f, err := as.pool.Alloc()
		if err != nil {
			return nil, err
		}
		pt = &pageTable{frame: f}
		as.dir[models.PDX(va)] = pt
	}
	return &pt.ents[models.PTX(va)], nil
}

// Lookup returns the frame mapped at va and the mapping's permissions.
func (as *AddrSpace) Lookup(va uint32) (*Frame, models.Perm, bool) {
	pte, _ := as.walk(va, false)
	if pte == nil || !pte.Present() {
		return nil, 0, false
	}
	return pte.Frame, pte.Perm, true
}

// Insert maps f at va with perm, replacing any previous mapping. The new
// frame is referenced before the old one is released so re-inserting the
// same frame at the same address is safe. On failure nothing changes.
func (as *AddrSpace) Insert(va uint32, f *Frame, perm models.Perm) error {
	if va >= models.UTOP {
		panic(models.Bugf("insert above UTOP: %#x", va))
	}
	pte, err := as.walk(va, true)
	if err != nil {
		return err
	}
	f.IncRef()
	old := pte.Frame
	pte.Frame, pte.Perm = f, perm|models.PTE_P
	if old != nil {
		old.DecRef()
	}
	return nil
}

// Remove clears the mapping at va. Returns false if nothing was mapped.
func (as *AddrSpace) Remove(va uint32) bool {
	pte, _ := as.walk(va, false)
	if pte == nil || pte.Frame == nil {
		return false
	}
	f := pte.Frame
	*pte = PTE{}
	f.DecRef()
	return true
}

// Free drops every mapping and page table.
func (as *AddrSpace) Free() {
	for pdx, pt := range as.dir {
		for i := range pt.ents {
			if f := pt.ents[i].Frame; f != nil {
				pt.ents[i] = PTE{}
				f.DecRef()
			}
		}
		pt.frame.DecRef()
		delete(as.dir, pdx)
	}
}

// Tables is the number of page table pages currently allocated.
func (as *AddrSpace) Tables() int {
	return len(as.dir)
}

type Mapping struct {
	VA   uint32
	PFN  uint32
	Perm models.Perm
}

// Mappings lists present mappings sorted by address.
func (as *AddrSpace) Mappings() []Mapping {
	var out []Mapping
	for pdx, pt := range as.dir {
		for i := range pt.ents {
			if pte := &pt.ents[i]; pte.Present() {
				va := pdx<<models.PTSHIFT | uint32(i)<<models.PGSHIFT
				out = append(out, Mapping{VA: va, PFN: pte.Frame.PFN(), Perm: pte.Perm})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VA < out[j].VA })
	return out
}
