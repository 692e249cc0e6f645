package kernel

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/lunixbochs/exocorn/go/models"
)

var (
	colorErr   = ansi.ColorCode("red+b")
	colorFault = ansi.ColorCode("white+b:red")
	colorEnv   = ansi.ColorCode("cyan")
)

// Strace prints one line per syscall: [env] name(args) = ret
type Strace struct {
	W       io.Writer
	Color   bool
	Strsize int
}

func hex(a interface{}) string {
	tmp := fmt.Sprintf("0x%x", a)
	if strings.HasPrefix(tmp, "0x-") {
		tmp = "-0x" + tmp[3:]
	}
	return tmp
}

func (s *Strace) color(code, str string) string {
	if !s.Color {
		return str
	}
	return code + str + ansi.Reset
}

func (s *Strace) traceArg(env *Env, args ...interface{}) string {
	switch arg := args[0].(type) {
	case Ptr:
		if len(args) > 1 && env != nil {
			if length, ok := args[1].(Len); ok {
				buf := make([]byte, length)
				if env.Space.Read(uint32(arg), buf) == nil {
					return models.Repr(buf, s.Strsize)
				}
			}
		}
		return hex(uint32(arg))
	case Va:
		if uint32(arg) == models.NoPage {
			return "NOPAGE"
		}
		return hex(uint32(arg))
	case Len:
		return fmt.Sprintf("%d", uint32(arg))
	case models.EnvID:
		if arg == 0 {
			return "0"
		}
		return hex(uint32(arg))
	case models.Perm, models.Status:
		return fmt.Sprintf("%v", arg)
	case uint32:
		return hex(arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

// Format renders a call without its result.
func (s *Strace) Format(env *Env, num uint32, call Call) string {
	if call == nil {
		return fmt.Sprintf("%s(...)", Num(num))
	}
	v := reflect.ValueOf(call).Elem()
	in := make([]interface{}, v.NumField())
	for i := range in {
		in[i] = v.Field(i).Interface()
	}
	out := make([]string, len(in))
	for i := range in {
		out[i] = s.traceArg(env, in[i:]...)
	}
	return fmt.Sprintf("%s(%s)", Num(num), strings.Join(out, ", "))
}

func (s *Strace) Ret(ret int32, err error) string {
	switch {
	case err == ErrBlocked:
		return "= ? <blocked>"
	case err != nil:
		return s.color(colorFault, fmt.Sprintf("= ? <%v>", err))
	case ret < 0 && models.Errno(ret).Valid():
		return s.color(colorErr, fmt.Sprintf("= %d %s", ret, models.Errno(ret).Name()))
	default:
		return fmt.Sprintf("= %s", hex(ret))
	}
}

// Print is called with the kernel lock held.
func (s *Strace) Print(k *Kernel, caller models.EnvID, num uint32, call Call, ret int32, err error) {
	env, _ := k.get(caller)
	line := fmt.Sprintf("%s %s %s\n", s.color(colorEnv, "["+caller.String()+"]"), s.Format(env, num, call), s.Ret(ret, err))
	s.W.Write([]byte(line))
}
