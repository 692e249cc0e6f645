package models

// virtual memory layout, 32-bit x86
//
//    ULIM        0xef800000  --+
//    UVPT        0xef400000    |  kernel-provided read-only mappings
//    UPAGES      0xef000000    |
//    UTOP,UENVS  0xeec00000  --+
//    UXSTACKTOP  0xeec00000     user exception stack
//    USTACKTOP   0xeebfe000     normal user stack grows down from here
//    UTEXT       0x00800000     program text
//    UTEMP       0x00400000     scratch mapping used by fork
const (
	PGSHIFT    = 12
	PGSIZE     = 1 << PGSHIFT
	PTSHIFT    = 22
	PTSIZE     = 1 << PTSHIFT
	NPTENTRIES = 1024
	NPDENTRIES = 1024

	ULIM       = 0xef800000
	UVPT       = ULIM - PTSIZE
	UPAGES     = UVPT - PTSIZE
	UENVS      = UPAGES - PTSIZE
	UTOP       = UENVS
	UXSTACKTOP = UTOP
	USTACKTOP  = UTOP - 2*PGSIZE
	UTEXT      = 2 * PTSIZE
	UTEMP      = PTSIZE

	// NoPage is passed instead of a page address to mean "no page".
	// Zero is a valid mapping target, so the split address is used.
	NoPage = UTOP
)

func PDX(va uint32) uint32   { return va >> PTSHIFT }
func PTX(va uint32) uint32   { return (va >> PGSHIFT) & (NPTENTRIES - 1) }
func PGNUM(va uint32) uint32 { return va >> PGSHIFT }
func PGOFF(va uint32) uint32 { return va & (PGSIZE - 1) }

func RoundDown(va uint32) uint32 { return va &^ (PGSIZE - 1) }

func RoundUp(va uint32) uint32 { return RoundDown(va + PGSIZE - 1) }

// UserPage reports whether va can name a user page: below UTOP and page-aligned.
func UserPage(va uint32) bool {
	return va < UTOP && PGOFF(va) == 0
}
