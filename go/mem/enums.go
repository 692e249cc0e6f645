package mem

// these errors are used for MemError.Enum
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_KERNEL         = 22
)

// these constants are used to specify the type of memory access
const (
	MEM_WRITE = 16
	MEM_READ  = 17
)
