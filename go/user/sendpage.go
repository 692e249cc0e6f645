package user

import (
	"bytes"

	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/proc"
	"github.com/lunixbochs/exocorn/go/ulib"
)

const (
	tempAddr      = 0xa00000
	tempAddrChild = 0xb00000
)

var (
	str1 = []byte("hello child environment! how are you?")
	str2 = []byte("hello parent environment! I'm good.")
)

const puw = models.PTE_P | models.PTE_U | models.PTE_W

func cstring(p *proc.Proc, va uint32) []byte {
	buf := make([]byte, 64)
	p.Read(va, buf)
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return buf
}

// SendPage shares a page with a child, which writes a reply into it and
// sends it back.
func SendPage(p *proc.Proc) {
	who, err := ulib.Spawn(p, "sendpage.child")
	if err != nil {
		ulib.Panic(p, "fork: %v", err)
	}
	if err := ulib.PageAlloc(p, 0, tempAddr, puw); err != nil {
		ulib.Panic(p, "page_alloc: %v", err)
	}
	p.Write(tempAddr, str1)
	ulib.Send(p, who, 0, tempAddr, puw)

	_, who, _, err = ulib.Recv(p, tempAddr)
	if err != nil {
		ulib.Panic(p, "recv: %v", err)
	}
	msg := cstring(p, tempAddr)
	ulib.Cprintf(p, "%s got message: %s\n", who, msg)
	if bytes.Equal(msg, str2) {
		ulib.Cprintf(p, "parent received correct message\n")
	}
}

func sendPageChild(p *proc.Proc) {
	_, who, _, err := ulib.Recv(p, tempAddrChild)
	if err != nil {
		ulib.Panic(p, "recv: %v", err)
	}
	msg := cstring(p, tempAddrChild)
	ulib.Cprintf(p, "%s got message: %s\n", who, msg)
	if bytes.Equal(msg, str1) {
		ulib.Cprintf(p, "child received correct message\n")
	}
	p.Write(tempAddrChild, append(append([]byte{}, str2...), 0))
	ulib.Send(p, who, 0, tempAddrChild, puw)
}
