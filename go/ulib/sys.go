package ulib

import (
	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
)

// Sys is what user code runs on: a trap into the kernel plus the
// read-only views JOS maps into every environment.
type Sys interface {
	Syscall(num kernel.Num, args ...uint32) int32
	Env() models.Env
	EnvOf(id models.EnvID) models.Env
	Pages() []mem.Mapping
	Read(va uint32, p []byte)
	Write(va uint32, p []byte)
	Entry(name string) uint32
	Config() *models.Config
}

// scratch space at the bottom of the stack page for syscall arguments
// that live in memory
const (
	scratch     = models.USTACKTOP - models.PGSIZE
	scratchSize = models.PGSIZE / 2
)

func call(s Sys, c kernel.Call) int32 {
	num, args := kernel.Encode(c)
	return s.Syscall(kernel.Num(num), args[:]...)
}

func Cputs(s Sys, str string) {
	for len(str) > 0 {
		n := len(str)
		if n > scratchSize {
			n = scratchSize
		}
		s.Write(scratch, []byte(str[:n]))
		call(s, &kernel.Cputs{S: scratch, Len: kernel.Len(n)})
		str = str[n:]
	}
}

func Cgetc(s Sys) byte {
	return byte(call(s, &kernel.Cgetc{}))
}

func Getenvid(s Sys) models.EnvID {
	return models.EnvID(call(s, &kernel.Getenvid{}))
}

func EnvDestroy(s Sys, id models.EnvID) error {
	return models.ResultErr(call(s, &kernel.EnvDestroy{Env: id}))
}

func Yield(s Sys) {
	call(s, &kernel.Yield{})
}

func PageAlloc(s Sys, id models.EnvID, va uint32, perm models.Perm) error {
	return models.ResultErr(call(s, &kernel.PageAlloc{Env: id, Va: kernel.Va(va), Perm: perm}))
}

func PageMap(s Sys, src models.EnvID, srcva uint32, dst models.EnvID, dstva uint32, perm models.Perm) error {
	return models.ResultErr(call(s, &kernel.PageMap{
		SrcEnv: src, SrcVa: kernel.Va(srcva),
		DstEnv: dst, DstVa: kernel.Va(dstva),
		Perm: perm,
	}))
}

func PageUnmap(s Sys, id models.EnvID, va uint32) error {
	return models.ResultErr(call(s, &kernel.PageUnmap{Env: id, Va: kernel.Va(va)}))
}

func Exofork(s Sys) (models.EnvID, error) {
	ret := call(s, &kernel.Exofork{})
	if err := models.ResultErr(ret); err != nil {
		return 0, err
	}
	return models.EnvID(ret), nil
}

func EnvSetStatus(s Sys, id models.EnvID, status models.Status) error {
	return models.ResultErr(call(s, &kernel.EnvSetStatus{Env: id, Status: status}))
}

// EnvSetTrapframe stages tf in scratch memory and hands the kernel a
// pointer to it.
func EnvSetTrapframe(s Sys, id models.EnvID, tf *models.Trapframe) error {
	buf, err := tf.Pack()
	if err != nil {
		return err
	}
	s.Write(scratch, buf)
	return models.ResultErr(call(s, &kernel.EnvSetTrapframe{Env: id, Tf: scratch}))
}

func EnvSetPgfaultUpcall(s Sys, id models.EnvID, fn uint32) error {
	return models.ResultErr(call(s, &kernel.EnvSetPgfaultUpcall{Env: id, Func: kernel.Ptr(fn)}))
}

func IpcTrySend(s Sys, id models.EnvID, value, srcva uint32, perm models.Perm) error {
	return models.ResultErr(call(s, &kernel.IpcTrySend{Env: id, Value: value, SrcVa: kernel.Va(srcva), Perm: perm}))
}

func IpcRecv(s Sys, dstva uint32) error {
	return models.ResultErr(call(s, &kernel.IpcRecv{DstVa: kernel.Va(dstva)}))
}

func TimeMsec(s Sys) uint32 {
	return uint32(call(s, &kernel.TimeMsec{}))
}
