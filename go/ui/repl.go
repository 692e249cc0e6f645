package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"

	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/script"
)

// Repl drives the kernel by hand: environments are created at the prompt
// and every syscall is issued on behalf of the selected one.
type Repl struct {
	k   *kernel.Kernel
	rl  *readline.Instance
	out io.Writer

	cur    models.EnvID
	vars   script.Vars
	diff   models.TfDiff
	strace *kernel.Strace
	color  bool
}

var errQuit = errors.New("quit")

type command struct {
	name, usage, desc string
	run               func(r *Repl, args []string) error
}

var commands = make(map[string]*command)

func cmd(c *command) *command {
	commands[c.name] = c
	return c
}

func New(k *kernel.Kernel, out io.Writer) *Repl {
	config := k.Config()
	return &Repl{
		k:      k,
		out:    out,
		vars:   make(script.Vars),
		strace: &kernel.Strace{Color: config.Color, Strsize: config.Strsize},
		color:  config.Color,
	}
}

// NewReadline attaches a line editor with history kept in the user's
// cache directory.
func NewReadline(k *kernel.Kernel) (*Repl, error) {
	configDirs := configdir.New("exocorn", "repl")
	cacheDir := configDirs.QueryCacheFolder()
	historyPath := ""
	if err := cacheDir.MkdirAll(); err == nil {
		historyPath = filepath.Join(cacheDir.Path, "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		HistoryFile:     historyPath,
	})
	if err != nil {
		return nil, err
	}
	r := New(k, rl.Stdout())
	r.rl = rl
	return r, nil
}

func (r *Repl) Printf(format string, a ...interface{}) {
	fmt.Fprintf(r.out, format, a...)
}

func (r *Repl) prompt() string {
	if r.cur == 0 {
		return "> "
	}
	return fmt.Sprintf("[%s]> ", r.cur)
}

// escapeOperators backslash-escapes the characters shellwords treats as
// pipes and separators, outside quotes, so PTE_P|PTE_U stays one word.
func escapeOperators(line string) string {
	var out strings.Builder
	var single, double, escaped bool
	for _, c := range line {
		switch {
		case escaped:
			escaped = false
		case c == '\\' && !single:
			escaped = true
		case c == '\'' && !double:
			single = !single
		case c == '"' && !single:
			double = !double
		case !single && !double && strings.ContainsRune("|&;<>", c):
			out.WriteByte('\\')
		}
		out.WriteRune(c)
	}
	return out.String()
}

// Exec runs one command line.
func (r *Repl) Exec(line string) error {
	args, err := shellwords.Parse(escapeOperators(line))
	if err != nil {
		r.Printf("parse error: %v\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	name, args := args[0], args[1:]
	c, ok := commands[name]
	if !ok {
		r.Printf("command not found.\n")
		return nil
	}
	if err := c.run(r, args); err != nil {
		if err == errQuit {
			return err
		}
		r.Printf("error: %v\n", err)
	}
	return nil
}

func (r *Repl) Run() error {
	if r.rl == nil {
		return errors.New("repl has no line editor")
	}
	defer r.rl.Close()
	for {
		r.rl.SetPrompt(r.prompt())
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err := r.Exec(line); err == errQuit {
			return nil
		}
	}
}

// target is the env named by args[i], or the selected env.
func (r *Repl) target(args []string, i int) (models.EnvID, error) {
	if len(args) > i {
		id, err := r.vars.Word(args[i])
		return models.EnvID(id), err
	}
	if r.cur == 0 {
		return 0, errors.New("no env selected, use new or env")
	}
	return r.cur, nil
}

func (r *Repl) word(s string) (uint32, error) {
	return r.vars.Word(s)
}

var _ = cmd(&command{
	name: "help",
	desc: "List commands.",
	run: func(r *Repl, args []string) error {
		var names []string
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := commands[name]
			r.Printf("  %-28s %s\n", strings.TrimSpace(c.name+" "+c.usage), c.desc)
		}
		return nil
	},
})

var _ = cmd(&command{
	name: "quit",
	desc: "Leave the repl.",
	run:  func(r *Repl, args []string) error { return errQuit },
})

var _ = cmd(&command{
	name:  "new",
	usage: "[name]",
	desc:  "Create a root environment and select it.",
	run: func(r *Repl, args []string) error {
		id, err := r.k.EnvCreate(models.UTEXT)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			r.vars[args[0]] = uint32(id)
		}
		r.cur = id
		r.Printf("%s\n", id)
		return nil
	},
})

var _ = cmd(&command{
	name:  "env",
	usage: "<id>",
	desc:  "Select the environment syscalls are made from.",
	run: func(r *Repl, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: env <id>")
		}
		id, err := r.target(args, 0)
		if err != nil {
			return err
		}
		if !r.k.Alive(id) {
			return models.E_BAD_ENV
		}
		r.cur = id
		return nil
	},
})

var _ = cmd(&command{
	name: "envs",
	desc: "List allocated environments.",
	run: func(r *Repl, args []string) error {
		r.Printf("  %-8s %-8s %-16s %5s %s\n", "id", "parent", "status", "runs", "ipc")
		for _, e := range r.k.Envs() {
			ipc := ""
			if e.Ipc.Recving {
				ipc = "recving"
				if e.Ipc.DstVA != models.NoPage {
					ipc += fmt.Sprintf(" @%#x", e.Ipc.DstVA)
				}
			}
			mark := " "
			if e.ID == r.cur {
				mark = "*"
			}
			r.Printf("%s %s %s %-16s %5d %s\n", mark, e.ID, e.Parent, e.Status, e.Runs, ipc)
		}
		return nil
	},
})

var _ = cmd(&command{
	name:  "maps",
	usage: "[id]",
	desc:  "Display page mappings.",
	run: func(r *Repl, args []string) error {
		id, err := r.target(args, 0)
		if err != nil {
			return err
		}
		maps, err := r.k.Mappings(id)
		if err != nil {
			return err
		}
		pool := r.k.Pool()
		for _, m := range maps {
			r.Printf("  0x%08x pfn %-5d refs %-3d %v\n", m.VA, m.PFN, pool.Frame(m.PFN).Refs(), m.Perm)
		}
		return nil
	},
})

var _ = cmd(&command{
	name:  "tf",
	usage: "[id]",
	desc:  "Show the saved trapframe, marking changes since the last tf.",
	run: func(r *Repl, args []string) error {
		id, err := r.target(args, 0)
		if err != nil {
			return err
		}
		e, ok := r.k.Env(id)
		if !ok {
			return models.E_BAD_ENV
		}
		r.Printf("%s", r.diff.Changes(id, &e.Tf).String(r.color))
		return nil
	},
})

var _ = cmd(&command{
	name:  "x",
	usage: "<va> [len]",
	desc:  "Hex dump memory of the selected environment.",
	run: func(r *Repl, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: x <va> [len]")
		}
		va, err := r.word(args[0])
		if err != nil {
			return err
		}
		size := uint32(64)
		if len(args) > 1 {
			if size, err = r.word(args[1]); err != nil {
				return err
			}
		}
		id, err := r.target(nil, 0)
		if err != nil {
			return err
		}
		buf := make([]byte, size)
		if err := r.k.Peek(id, va, buf); err != nil {
			return err
		}
		for _, line := range models.HexDump(va, buf) {
			r.Printf("  %s\n", line)
		}
		return nil
	},
})

var _ = cmd(&command{
	name:  "w",
	usage: "<va> <text>",
	desc:  "Write text into memory of the selected environment.",
	run: func(r *Repl, args []string) error {
		if len(args) != 2 {
			return errors.New("usage: w <va> <text>")
		}
		va, err := r.word(args[0])
		if err != nil {
			return err
		}
		id, err := r.target(nil, 0)
		if err != nil {
			return err
		}
		return r.k.Poke(id, va, []byte(args[1]))
	},
})

var _ = cmd(&command{
	name:  "sys",
	usage: "<name> [args...]",
	desc:  "Make a syscall as the selected environment.",
	run: func(r *Repl, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: sys <name> [args...]")
		}
		sc, ok := kernel.Lookup(args[0])
		if !ok {
			return errors.Errorf("unknown syscall %q", args[0])
		}
		args = args[1:]
		if len(args) != len(sc.In) {
			return errors.Errorf("%s takes %d args: %s", sc.Name, len(sc.In), strings.Join(sc.Args, ", "))
		}
		id, err := r.target(nil, 0)
		if err != nil {
			return err
		}
		var regs [5]uint32
		for i, arg := range args {
			if regs[i], err = r.word(arg); err != nil {
				return err
			}
		}
		call, _ := r.k.Decode(uint32(sc.Num), regs)
		ret, err := r.k.Syscall(id, uint32(sc.Num), regs[:len(args)]...)
		if err != nil && err != kernel.ErrBlocked {
			if _, ok := kernel.IsFault(err); !ok {
				return err
			}
		}
		r.Printf("%s %s\n", r.strace.Format(nil, uint32(sc.Num), call), r.strace.Ret(ret, err))
		return nil
	},
})
