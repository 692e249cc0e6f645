package trace

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/exocorn/go/cmd"
	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/trace"
)

func each(tf *trace.TraceReader, fn func(op trace.Op) error) error {
	for {
		op, err := tf.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace operation")
		}
		if err := fn(op); err != nil {
			return err
		}
	}
}

func PrintJson(w io.Writer, tf *trace.TraceReader) error {
	out, err := json.Marshal(&tf.Header)
	if err != nil {
		return errors.Wrap(err, "error printing header")
	}
	fmt.Fprintf(w, "%s\n", out)
	return each(tf, func(op trace.Op) error {
		out, err := json.Marshal(op)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", out)
		return nil
	})
}

func syscallName(num uint32) string {
	if num == ^uint32(0) {
		return "<user access>"
	}
	return kernel.Num(num).String()
}

func ret(r int32) string {
	if r < 0 {
		return fmt.Sprintf("%d %s", r, models.Errno(r).Name())
	}
	return fmt.Sprintf("%#x", r)
}

// PrintPretty renders each record with syscall and argument names.
func PrintPretty(w io.Writer, tf *trace.TraceReader) error {
	h := &tf.Header
	fmt.Fprintf(w, "boot %s nenv=%d npages=%d\n", h.BootID, h.NEnv, h.NPages)
	table := kernel.Syscalls()
	return each(tf, func(op trace.Op) error {
		switch o := op.(type) {
		case *trace.OpSpawn:
			fmt.Fprintf(w, "%6d %s spawn parent=%s entry=%#x\n", o.Seq, models.EnvID(o.Env), models.EnvID(o.Parent), o.Entry)
		case *trace.OpSyscall:
			var args []string
			for i, a := range o.Args {
				name := fmt.Sprintf("a%d", i+1)
				if o.Num < uint32(len(table)) && i < len(table[o.Num].Args) {
					name = table[o.Num].Args[i]
				}
				args = append(args, fmt.Sprintf("%s=%#x", name, a))
			}
			fmt.Fprintf(w, "%6d %s %s(%s) = %s\n", o.Seq, models.EnvID(o.Env), syscallName(o.Num), strings.Join(args, ", "), ret(o.Ret))
		case *trace.OpExit:
			fmt.Fprintf(w, "%6d %s exit by %s\n", o.Seq, models.EnvID(o.Env), models.EnvID(o.By))
		case *trace.OpFault:
			merr := &mem.MemError{Addr: o.Addr, Size: int(o.Size), Enum: int(o.Enum)}
			fmt.Fprintf(w, "%6d %s fault in %s: %v\n", o.Seq, models.EnvID(o.Env), syscallName(o.Num), merr)
		default:
			fmt.Fprintf(w, "%s\n", op)
		}
		return nil
	})
}

// PrintStats counts syscalls by name and result.
func PrintStats(w io.Writer, tf *trace.TraceReader) error {
	type key struct{ name, result string }
	counts := make(map[key]int)
	envs := 0
	err := each(tf, func(op trace.Op) error {
		switch o := op.(type) {
		case *trace.OpSpawn:
			envs++
		case *trace.OpSyscall:
			result := "ok"
			if o.Ret < 0 {
				result = models.Errno(o.Ret).Name()
			}
			counts[key{syscallName(o.Num), result}]++
		}
		return nil
	})
	if err != nil {
		return err
	}
	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].result < keys[j].result
	})
	fmt.Fprintf(w, "%d environments\n", envs)
	for _, k := range keys {
		fmt.Fprintf(w, "%-24s %-16s %d\n", k.name, k.result, counts[k])
	}
	return nil
}

func Main(args []string) int {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output trace as line-delimited JSON objects")
	prettyFlag := fs.Bool("pretty", false, "output trace as human-readable console text")
	statsFlag := fs.Bool("stats", false, "summarize syscall counts")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <tracefile>\n", args[0])
		fs.PrintDefaults()
	}

	fs.Parse(args[1:])
	if fs.NArg() == 0 || !(*jsonFlag || *prettyFlag || *statsFlag) {
		fs.Usage()
		return 1
	}
	args = fs.Args()

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open: %s %v\n", args[0], err)
		return 1
	}
	tf, err := trace.NewReader(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening trace file: %v\n", err)
		return 1
	}
	defer tf.Close()
	switch {
	case *jsonFlag:
		err = PrintJson(os.Stdout, tf)
	case *prettyFlag:
		err = PrintPretty(os.Stdout, tf)
	default:
		err = PrintStats(os.Stdout, tf)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error printing trace: %v\n", err)
		return 1
	}
	return 0
}

func init() { cmd.Register("trace", "print a saved syscall trace file", Main) }
