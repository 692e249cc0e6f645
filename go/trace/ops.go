package trace

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var order = binary.LittleEndian

const (
	OP_NOP     = 0
	OP_SPAWN   = 1
	OP_SYSCALL = 2
	OP_EXIT    = 3
	OP_FAULT   = 4
)

// Op is one trace record. The on-disk form is a type byte followed by the
// struc-packed body.
type Op interface {
	Type() uint8
	String() string
}

type OpNop struct{}

func (o *OpNop) Type() uint8    { return OP_NOP }
func (o *OpNop) String() string { return "nop" }

// OpSpawn records a new environment, either created by the kernel or by exofork.
type OpSpawn struct {
	Seq    uint64
	Env    int32
	Parent int32
	Entry  uint32
}

func (o *OpSpawn) Type() uint8 { return OP_SPAWN }
func (o *OpSpawn) String() string {
	return fmt.Sprintf("#%d spawn %08x parent=%08x entry=%#x", o.Seq, uint32(o.Env), uint32(o.Parent), o.Entry)
}

type OpSyscall struct {
	Seq   uint64
	Env   int32
	Num   uint32
	NArgs uint8 `struc:"sizeof=Args"`
	Args  []uint32
	Ret   int32
}

func (o *OpSyscall) Type() uint8 { return OP_SYSCALL }
func (o *OpSyscall) String() string {
	return fmt.Sprintf("#%d [%08x] syscall %d %#x = %d", o.Seq, uint32(o.Env), o.Num, o.Args, o.Ret)
}

type OpExit struct {
	Seq uint64
	Env int32
	By  int32
}

func (o *OpExit) Type() uint8 { return OP_EXIT }
func (o *OpExit) String() string {
	return fmt.Sprintf("#%d exit %08x by %08x", o.Seq, uint32(o.Env), uint32(o.By))
}

// OpFault records a caller-fatal memory fault inside a syscall.
type OpFault struct {
	Seq  uint64
	Env  int32
	Num  uint32
	Addr uint32
	Size uint32
	Enum uint8
}

func (o *OpFault) Type() uint8 { return OP_FAULT }
func (o *OpFault) String() string {
	return fmt.Sprintf("#%d [%08x] fault in syscall %d at %#x(%d) enum=%d", o.Seq, uint32(o.Env), o.Num, o.Addr, o.Size, o.Enum)
}

func Pack(w io.Writer, op Op) error {
	if _, err := w.Write([]byte{op.Type()}); err != nil {
		return err
	}
	if _, ok := op.(*OpNop); ok {
		return nil
	}
	return errors.Wrap(struc.PackWithOrder(w, op, order), "struc.Pack() failed")
}

func Unpack(r io.Reader) (Op, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return nil, err
	}
	var op Op
	switch tmp[0] {
	case OP_NOP:
		return &OpNop{}, nil
	case OP_SPAWN:
		op = &OpSpawn{}
	case OP_SYSCALL:
		op = &OpSyscall{}
	case OP_EXIT:
		op = &OpExit{}
	case OP_FAULT:
		op = &OpFault{}
	default:
		return nil, errors.Errorf("Unknown op: %d", tmp[0])
	}
	if err := struc.UnpackWithOrder(r, op, order); err != nil {
		return nil, errors.Wrapf(err, "unpacking op %d", tmp[0])
	}
	return op, nil
}
