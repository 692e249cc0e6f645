package mem

import (
	"encoding/binary"

	"github.com/lunixbochs/exocorn/go/models"
)

var Order = binary.LittleEndian

// RangeValid checks that every page overlapping [addr, addr+size) is
// mapped and carries all of perm. It does not modify anything.
func (as *AddrSpace) RangeValid(addr, size uint32, perm models.Perm) (mapGood bool, permGood bool) {
	if size == 0 {
		return true, true
	}
	end := uint64(addr) + uint64(size)
	if end > models.ULIM {
		return false, false
	}
	permGood = true
	for va := uint64(models.RoundDown(addr)); va < end; va += models.PGSIZE {
		_, p, ok := as.Lookup(uint32(va))
		if !ok {
			return false, false
		}
		if !p.Has(perm) {
			permGood = false
		}
	}
	return true, permGood
}

// UserMemCheck returns a *MemError describing the first reason the user may
// not access [addr, addr+size) with perm, or nil.
func (as *AddrSpace) UserMemCheck(addr, size uint32, perm models.Perm) error {
	write := perm.Has(models.PTE_W)
	perm |= models.PTE_U | models.PTE_P
	if uint64(addr)+uint64(size) > models.ULIM {
		return &MemError{Addr: addr, Size: int(size), Enum: MEM_KERNEL}
	}
	mapGood, permGood := as.RangeValid(addr, size, perm)
	switch {
	case !mapGood && write:
		return &MemError{Addr: addr, Size: int(size), Enum: MEM_WRITE_UNMAPPED}
	case !mapGood:
		return &MemError{Addr: addr, Size: int(size), Enum: MEM_READ_UNMAPPED}
	case !permGood && write:
		return &MemError{Addr: addr, Size: int(size), Enum: MEM_WRITE_PROT}
	case !permGood:
		return &MemError{Addr: addr, Size: int(size), Enum: MEM_READ_PROT}
	}
	return nil
}

// Read copies user memory into p. The whole range is checked first, so a
// failed read copies nothing.
func (as *AddrSpace) Read(addr uint32, p []byte) error {
	if err := as.UserMemCheck(addr, uint32(len(p)), 0); err != nil {
		return err
	}
	for len(p) > 0 {
		f, _, _ := as.Lookup(models.RoundDown(addr))
		n := copy(p, f.Data()[models.PGOFF(addr):])
		addr, p = addr+uint32(n), p[n:]
	}
	return nil
}

// Write copies p into user memory, which must be mapped writable.
func (as *AddrSpace) Write(addr uint32, p []byte) error {
	if err := as.UserMemCheck(addr, uint32(len(p)), models.PTE_W); err != nil {
		return err
	}
	for len(p) > 0 {
		f, _, _ := as.Lookup(models.RoundDown(addr))
		n := copy(f.Data()[models.PGOFF(addr):], p)
		addr, p = addr+uint32(n), p[n:]
	}
	return nil
}

// MemReader streams user memory from Addr. A read that touches memory the
// user cannot read copies nothing and does not advance.
type MemReader struct {
	Space *AddrSpace
	Addr  uint32
}

func (m *MemReader) Read(p []byte) (int, error) {
	if err := m.Space.Read(m.Addr, p); err != nil {
		return 0, err
	}
	m.Addr += uint32(len(p))
	return len(p), nil
}
