package mem

import (
	"bytes"
	"testing"

	"github.com/lunixbochs/exocorn/go/models"
)

const rw = models.PTE_P | models.PTE_U | models.PTE_W
const ro = models.PTE_P | models.PTE_U

func mapNew(t *testing.T, as *AddrSpace, va uint32, perm models.Perm) *Frame {
	f, err := as.pool.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if err := as.Insert(va, f, perm); err != nil {
		t.Fatal(err)
	}
	f.DecRef()
	return f
}

func TestInsertLookupRemove(t *testing.T) {
	pool := NewPool(8)
	as := NewAddrSpace(pool)
	f := mapNew(t, as, 0x1000, rw)
	// one data frame and one page table
	if pool.Free() != 6 || as.Tables() != 1 {
		t.Fatalf("free=%d tables=%d", pool.Free(), as.Tables())
	}
	got, perm, ok := as.Lookup(0x1000)
	if !ok || got != f || perm != rw {
		t.Fatalf("lookup: %v %v %v", got, perm, ok)
	}
	if _, _, ok := as.Lookup(0x2000); ok {
		t.Fatal("lookup of unmapped page succeeded")
	}
	if !as.Remove(0x1000) {
		t.Fatal("remove of mapped page failed")
	}
	if as.Remove(0x1000) {
		t.Fatal("second remove reported a mapping")
	}
	if f.Refs() != 0 || pool.Free() != 7 {
		t.Fatalf("frame not released: refs=%d free=%d", f.Refs(), pool.Free())
	}
}

func TestInsertSharedAndReplace(t *testing.T) {
	pool := NewPool(8)
	a, b := NewAddrSpace(pool), NewAddrSpace(pool)
	f := mapNew(t, a, 0x1000, rw)
	if err := b.Insert(0x5000, f, ro); err != nil {
		t.Fatal(err)
	}
	if f.Refs() != 2 {
		t.Fatalf("refs=%d", f.Refs())
	}
	// same frame at the same address must survive
	if err := a.Insert(0x1000, f, ro); err != nil {
		t.Fatal(err)
	}
	if f.Refs() != 2 {
		t.Fatalf("reinsert changed refs: %d", f.Refs())
	}
	g := mapNew(t, b, 0x5000, rw)
	if f.Refs() != 1 || g.Refs() != 1 {
		t.Fatalf("replace: f=%d g=%d", f.Refs(), g.Refs())
	}
	a.Free()
	b.Free()
	if pool.Free() != pool.Size() {
		t.Fatalf("leak after Free: %d/%d", pool.Free(), pool.Size())
	}
}

func TestInsertNoTableMemory(t *testing.T) {
	pool := NewPool(1)
	as := NewAddrSpace(pool)
	f, _ := pool.Alloc()
	if err := as.Insert(0x1000, f, rw); err != models.E_NO_MEM {
		t.Fatalf("expected E_NO_MEM, got %v", err)
	}
	if f.Refs() != 1 {
		t.Fatalf("failed insert touched refs: %d", f.Refs())
	}
	f.DecRef()
	if pool.Free() != 1 {
		t.Fatal("frame leaked after failed insert")
	}
}

func TestMappingsSorted(t *testing.T) {
	pool := NewPool(16)
	as := NewAddrSpace(pool)
	for _, va := range []uint32{models.USTACKTOP - models.PGSIZE, models.UTEXT, 0} {
		mapNew(t, as, va, ro)
	}
	maps := as.Mappings()
	if len(maps) != 3 {
		t.Fatalf("got %d mappings", len(maps))
	}
	for i := 1; i < len(maps); i++ {
		if maps[i-1].VA >= maps[i].VA {
			t.Fatalf("unsorted: %#v", maps)
		}
	}
}

func TestUserReadWrite(t *testing.T) {
	pool := NewPool(8)
	as := NewAddrSpace(pool)
	mapNew(t, as, 0x1000, rw)
	mapNew(t, as, 0x2000, rw)
	mapNew(t, as, 0x3000, ro)

	// spans a page boundary
	msg := []byte("hello across pages")
	if err := as.Write(0x2000-4, msg); err != nil {
		t.Fatal(err)
	}
	tmp := make([]byte, len(msg))
	if err := as.Read(0x2000-4, tmp); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(tmp, msg) {
		t.Fatalf("read back %q", tmp)
	}

	tests := map[string]struct {
		err  error
		enum int
	}{
		"write ro":      {as.Write(0x3000, msg), MEM_WRITE_PROT},
		"write gap":     {as.Write(0x4000-4, msg), MEM_WRITE_UNMAPPED},
		"read unmapped": {as.Read(0x8000, tmp), MEM_READ_UNMAPPED},
		"read kernel":   {as.Read(models.ULIM, tmp), MEM_KERNEL},
	}
	for name, test := range tests {
		merr, ok := test.err.(*MemError)
		if !ok {
			t.Errorf("%s: expected *MemError, got %v", name, test.err)
			continue
		}
		if merr.Enum != test.enum {
			t.Errorf("%s: enum %d != %d", name, merr.Enum, test.enum)
		}
	}
	if err := as.Read(0x8000, nil); err != nil {
		t.Errorf("empty read failed: %v", err)
	}
}

func TestMemReader(t *testing.T) {
	pool := NewPool(4)
	as := NewAddrSpace(pool)
	mapNew(t, as, 0, rw)
	if err := as.Write(models.PGSIZE-2, []byte{1, 2}); err == nil {
		t.Fatal("write past the mapped page succeeded")
	}
	if err := as.Write(16, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	r := &MemReader{Space: as, Addr: 16}
	tmp := make([]byte, 2)
	for _, want := range [][]byte{{1, 2}, {3, 4}} {
		if _, err := r.Read(tmp); err != nil || !bytes.Equal(tmp, want) {
			t.Fatalf("reader got %v %v, want %v", tmp, err, want)
		}
	}
	r.Addr = models.PGSIZE - 1
	if n, err := r.Read(tmp); n != 0 || err == nil {
		t.Fatalf("read across unmapped page: %d %v", n, err)
	}
	if r.Addr != models.PGSIZE-1 {
		t.Errorf("failed read advanced to %#x", r.Addr)
	}
}
