package models

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// registers as pushed by pushal
type PushRegs struct {
	Edi  uint32
	Esi  uint32
	Ebp  uint32
	Oesp uint32 // useless
	Ebx  uint32
	Edx  uint32
	Ecx  uint32
	Eax  uint32
}

// Trapframe is the saved user execution context. The struc layout matches
// what a user program writes in memory for env_set_trapframe.
type Trapframe struct {
	Regs     PushRegs
	Es       uint16
	Padding1 uint16
	Ds       uint16
	Padding2 uint16
	Trapno   uint32
	Err      uint32
	Eip      uint32
	Cs       uint16
	Padding3 uint16
	Eflags   uint32
	Esp      uint32
	Ss       uint16
	Padding4 uint16
}

const TrapframeSize = 68

var TrapframeOrder = binary.LittleEndian

// syscall argument registers, in argument order
func (tf *Trapframe) SyscallArgs() [5]uint32 {
	r := &tf.Regs
	return [5]uint32{r.Edx, r.Ecx, r.Ebx, r.Edi, r.Esi}
}

func (tf *Trapframe) SetSyscall(num uint32, args [5]uint32) {
	r := &tf.Regs
	r.Eax = num
	r.Edx, r.Ecx, r.Ebx, r.Edi, r.Esi = args[0], args[1], args[2], args[3], args[4]
}

func (tf *Trapframe) Pack() ([]byte, error) {
	var buf bytes.Buffer
	s := StrucStream{Stream: &buf, Order: TrapframeOrder}
	if err := s.Pack(tf); err != nil {
		return nil, errors.Wrap(err, "struc.Pack() failed")
	}
	return buf.Bytes(), nil
}

// ReadTrapframe unpacks one frame from r, e.g. straight out of user memory.
func ReadTrapframe(r io.Reader) (*Trapframe, error) {
	tf := &Trapframe{}
	if err := struc.UnpackWithOrder(r, tf, TrapframeOrder); err != nil {
		return nil, errors.Wrap(err, "struc.Unpack() failed")
	}
	return tf, nil
}

// Fields flattens the frame into named values, in struct order, for
// tracing and diffs.
func (tf *Trapframe) Fields() []Field {
	r := &tf.Regs
	return []Field{
		{"edi", r.Edi}, {"esi", r.Esi}, {"ebp", r.Ebp}, {"oesp", r.Oesp},
		{"ebx", r.Ebx}, {"edx", r.Edx}, {"ecx", r.Ecx}, {"eax", r.Eax},
		{"es", uint32(tf.Es)}, {"ds", uint32(tf.Ds)},
		{"trap", tf.Trapno}, {"err", tf.Err}, {"eip", tf.Eip},
		{"cs", uint32(tf.Cs)}, {"flag", tf.Eflags}, {"esp", tf.Esp}, {"ss", uint32(tf.Ss)},
	}
}

type Field struct {
	Name string
	Val  uint32
}
