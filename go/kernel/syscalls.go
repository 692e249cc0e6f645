package kernel

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/lunixbochs/exocorn/go/models"
)

// Num is a syscall number, in the order user programs know them.
type Num uint32

const (
	SYS_CPUTS Num = iota
	SYS_CGETC
	SYS_GETENVID
	SYS_ENV_DESTROY
	SYS_PAGE_ALLOC
	SYS_PAGE_MAP
	SYS_PAGE_UNMAP
	SYS_EXOFORK
	SYS_ENV_SET_STATUS
	SYS_ENV_SET_TRAPFRAME
	SYS_ENV_SET_PGFAULT_UPCALL
	SYS_YIELD
	SYS_IPC_TRY_SEND
	SYS_IPC_RECV
	SYS_TIME_MSEC
	NSYSCALLS
)

// argument types with their own trace rendering
type (
	Ptr uint32
	Len uint32
	Va  uint32
)

// Call is a decoded syscall. There is one struct per syscall; the fields
// are the arguments in register order.
type Call interface {
	Num() Num
}

type (
	Cputs struct {
		S   Ptr
		Len Len
	}
	Cgetc      struct{}
	Getenvid   struct{}
	EnvDestroy struct {
		Env models.EnvID
	}
	PageAlloc struct {
		Env  models.EnvID
		Va   Va
		Perm models.Perm
	}
	PageMap struct {
		SrcEnv models.EnvID
		SrcVa  Va
		DstEnv models.EnvID
		DstVa  Va
		Perm   models.Perm
	}
	PageUnmap struct {
		Env models.EnvID
		Va  Va
	}
	Exofork      struct{}
	EnvSetStatus struct {
		Env    models.EnvID
		Status models.Status
	}
	EnvSetTrapframe struct {
		Env models.EnvID
		Tf  Ptr
	}
	EnvSetPgfaultUpcall struct {
		Env  models.EnvID
		Func Ptr
	}
	Yield      struct{}
	IpcTrySend struct {
		Env   models.EnvID
		Value uint32
		SrcVa Va
		Perm  models.Perm
	}
	IpcRecv struct {
		DstVa Va
	}
	TimeMsec struct{}
)

func (*Cputs) Num() Num               { return SYS_CPUTS }
func (*Cgetc) Num() Num               { return SYS_CGETC }
func (*Getenvid) Num() Num            { return SYS_GETENVID }
func (*EnvDestroy) Num() Num          { return SYS_ENV_DESTROY }
func (*PageAlloc) Num() Num           { return SYS_PAGE_ALLOC }
func (*PageMap) Num() Num             { return SYS_PAGE_MAP }
func (*PageUnmap) Num() Num           { return SYS_PAGE_UNMAP }
func (*Exofork) Num() Num             { return SYS_EXOFORK }
func (*EnvSetStatus) Num() Num        { return SYS_ENV_SET_STATUS }
func (*EnvSetTrapframe) Num() Num     { return SYS_ENV_SET_TRAPFRAME }
func (*EnvSetPgfaultUpcall) Num() Num { return SYS_ENV_SET_PGFAULT_UPCALL }
func (*Yield) Num() Num               { return SYS_YIELD }
func (*IpcTrySend) Num() Num          { return SYS_IPC_TRY_SEND }
func (*IpcRecv) Num() Num             { return SYS_IPC_RECV }
func (*TimeMsec) Num() Num            { return SYS_TIME_MSEC }

var prototypes = [NSYSCALLS]Call{
	SYS_CPUTS:                  &Cputs{},
	SYS_CGETC:                  &Cgetc{},
	SYS_GETENVID:               &Getenvid{},
	SYS_ENV_DESTROY:            &EnvDestroy{},
	SYS_PAGE_ALLOC:             &PageAlloc{},
	SYS_PAGE_MAP:               &PageMap{},
	SYS_PAGE_UNMAP:             &PageUnmap{},
	SYS_EXOFORK:                &Exofork{},
	SYS_ENV_SET_STATUS:         &EnvSetStatus{},
	SYS_ENV_SET_TRAPFRAME:      &EnvSetTrapframe{},
	SYS_ENV_SET_PGFAULT_UPCALL: &EnvSetPgfaultUpcall{},
	SYS_YIELD:                  &Yield{},
	SYS_IPC_TRY_SEND:           &IpcTrySend{},
	SYS_IPC_RECV:               &IpcRecv{},
	SYS_TIME_MSEC:              &TimeMsec{},
}

// Syscall describes one entry of the syscall table.
type Syscall struct {
	Num  Num
	Name string
	Type reflect.Type
	In   []reflect.Type
	// lower-case argument names, for traces and the repl
	Args []string
}

var syscalls [NSYSCALLS]Syscall
var syscallNames = make(map[string]Num)

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

func init() {
	for i, proto := range prototypes {
		if proto == nil || proto.Num() != Num(i) {
			panic(fmt.Sprintf("syscall table entry %d is wrong", i))
		}
		typ := reflect.TypeOf(proto).Elem()
		sc := Syscall{Num: Num(i), Name: camelToSnakeCase(typ.Name()), Type: typ}
		for j := 0; j < typ.NumField(); j++ {
			sc.In = append(sc.In, typ.Field(j).Type)
			sc.Args = append(sc.Args, camelToSnakeCase(typ.Field(j).Name))
		}
		syscalls[i] = sc
		syscallNames[sc.Name] = sc.Num
	}
}

func (n Num) String() string {
	if n < NSYSCALLS {
		return syscalls[n].Name
	}
	return fmt.Sprintf("sys_%d", uint32(n))
}

// Lookup returns the table entry for a syscall name like "page_alloc".
func Lookup(name string) (*Syscall, bool) {
	n, ok := syscallNames[strings.TrimPrefix(name, "sys_")]
	if !ok {
		return nil, false
	}
	return &syscalls[n], true
}

// Syscalls lists the whole table in number order.
func Syscalls() []Syscall {
	return syscalls[:]
}
