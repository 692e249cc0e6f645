package kernel

import (
	"reflect"

	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"

	"github.com/lunixbochs/exocorn/go/models"
)

func (k *Kernel) argCodec(arg interface{}, vals []interface{}) error {
	if reg, ok := vals[0].(uint64); ok {
		switch v := arg.(type) {
		case *models.EnvID:
			*v = models.EnvID(int32(uint32(reg)))
		case *models.Perm:
			*v = models.Perm(reg)
		case *models.Status:
			*v = models.Status(reg)
		case *Ptr:
			*v = Ptr(reg)
		case *Len:
			*v = Len(reg)
		case *Va:
			*v = Va(reg)
		case *uint32:
			*v = uint32(reg)
		default:
			return argjoy.NoMatch
		}
		return nil
	}
	return argjoy.NoMatch
}

// Decode builds the typed Call for a syscall number and its argument
// registers. An unknown number is E_INVAL.
func (k *Kernel) Decode(num uint32, args [5]uint32) (Call, error) {
	if num >= uint32(NSYSCALLS) {
		return nil, models.E_INVAL
	}
	sc := &syscalls[num]
	regs := make([]uint64, len(sc.In))
	for i := range regs {
		regs[i] = uint64(args[i])
	}
	converted, err := k.argjoy.Convert(sc.In, false, regs)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s()", sc.Name)
	}
	call := reflect.New(sc.Type)
	for i, v := range converted {
		call.Elem().Field(i).Set(v)
	}
	return call.Interface().(Call), nil
}

// Encode is the inverse of Decode, used by the user library and scripts.
func Encode(call Call) (uint32, [5]uint32) {
	var args [5]uint32
	v := reflect.ValueOf(call).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Int32:
			args[i] = uint32(int32(f.Int()))
		default:
			args[i] = uint32(f.Uint())
		}
	}
	return uint32(call.Num()), args
}
