// Package script drives the kernel from YAML syscall scripts, one syscall
// per step, checking each result.
package script

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/models"
)

type Script struct {
	// root environments to create, by name
	Envs  []string `yaml:"envs"`
	Steps []Step   `yaml:"steps"`
}

// Step either makes a syscall (Call) or writes Data into memory at Addr.
type Step struct {
	Env    string        `yaml:"env"`
	Call   string        `yaml:"call"`
	Args   []interface{} `yaml:"args"`
	Expect interface{}   `yaml:"expect"`
	// store the result in $Save
	Save string `yaml:"save"`

	Addr interface{} `yaml:"addr"`
	Data string      `yaml:"data"`
}

func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "parsing script")
	}
	if len(s.Envs) == 0 {
		return nil, errors.New("script has no envs")
	}
	return &s, nil
}

func Load(path string) (*Script, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading script")
	}
	s, err := Parse(data)
	return s, errors.Wrap(err, path)
}

var constants = map[string]uint32{
	"NOPAGE":     models.NoPage,
	"UTOP":       models.UTOP,
	"ULIM":       models.ULIM,
	"UTEXT":      models.UTEXT,
	"UTEMP":      models.UTEMP,
	"USTACKTOP":  models.USTACKTOP,
	"UXSTACKTOP": models.UXSTACKTOP,
	"PGSIZE":     models.PGSIZE,
}

// Vars holds $names: script envs and saved results.
type Vars map[string]uint32

// Word evaluates one argument token.
func (v Vars) Word(arg interface{}) (uint32, error) {
	s := strings.TrimSpace(fmt.Sprint(arg))
	switch {
	case strings.HasPrefix(s, "$"):
		if val, ok := v[s[1:]]; ok {
			return val, nil
		}
		return 0, errors.Errorf("undefined variable %s", s)
	case strings.HasPrefix(s, "PTE_"):
		perm, err := models.ParsePerm(s)
		return uint32(perm), err
	case strings.HasPrefix(s, "ENV_"):
		status, err := models.ParseStatus(s)
		return uint32(status), err
	}
	if val, ok := constants[s]; ok {
		return val, nil
	}
	// simple offsets like UTEXT+0x1000
	if i := strings.IndexByte(s, '+'); i > 0 {
		a, err := v.Word(s[:i])
		if err != nil {
			return 0, err
		}
		b, err := v.Word(s[i+1:])
		return a + b, err
	}
	return models.ParseWord(s)
}

// Outcome of one step, as a comparable string: a number, an errno name,
// "blocked" or "fault".
func outcome(ret int32, err error) string {
	switch {
	case err == kernel.ErrBlocked:
		return "blocked"
	case err != nil:
		return "fault"
	case ret < 0:
		return models.Errno(ret).Name()
	}
	return fmt.Sprintf("%d", ret)
}

func (v Vars) expect(want interface{}) (string, error) {
	s := strings.TrimSpace(fmt.Sprint(want))
	switch s {
	case "blocked", "fault":
		return s, nil
	}
	if e, ok := models.ParseErrno(s); ok {
		return e.Name(), nil
	}
	n, err := v.Word(s)
	if err != nil {
		return "", err
	}
	return outcome(int32(n), nil), nil
}

type Result struct {
	Steps    int
	Failures int
}

// Run executes s against k, printing one line per step to out.
func Run(k *kernel.Kernel, s *Script, out io.Writer) (*Result, error) {
	vars := make(Vars)
	for _, name := range s.Envs {
		id, err := k.EnvCreate(models.UTEXT)
		if err != nil {
			return nil, errors.Wrapf(err, "creating env %s", name)
		}
		vars[name] = uint32(id)
	}
	res := &Result{}
	strace := &kernel.Strace{Strsize: k.Config().Strsize}
	for i, step := range s.Steps {
		res.Steps++
		env, ok := vars[step.Env]
		if !ok {
			return res, errors.Errorf("step %d: unknown env %q", i+1, step.Env)
		}
		id := models.EnvID(env)
		if step.Call == "" {
			addr, err := vars.Word(step.Addr)
			if err != nil {
				return res, errors.Wrapf(err, "step %d", i+1)
			}
			status := "ok"
			if err := k.UserWrite(id, addr, []byte(step.Data)); err != nil {
				status = "FAIL: " + err.Error()
				res.Failures++
			}
			fmt.Fprintf(out, "%3d %s write %#x %q: %s\n", i+1, step.Env, addr, step.Data, status)
			continue
		}
		sc, ok := kernel.Lookup(step.Call)
		if !ok {
			return res, errors.Errorf("step %d: unknown syscall %q", i+1, step.Call)
		}
		if len(step.Args) != len(sc.In) {
			return res, errors.Errorf("step %d: %s takes %d args, got %d", i+1, sc.Name, len(sc.In), len(step.Args))
		}
		var args []uint32
		for _, arg := range step.Args {
			w, err := vars.Word(arg)
			if err != nil {
				return res, errors.Wrapf(err, "step %d", i+1)
			}
			args = append(args, w)
		}
		var regs [5]uint32
		copy(regs[:], args)
		call, _ := k.Decode(uint32(sc.Num), regs)
		desc := strace.Format(nil, uint32(sc.Num), call)

		ret, err := k.Syscall(id, uint32(sc.Num), args...)
		if err != nil && err != kernel.ErrBlocked {
			if _, ok := kernel.IsFault(err); !ok {
				return res, errors.Wrapf(err, "step %d", i+1)
			}
		}
		got := outcome(ret, err)
		if step.Save != "" {
			vars[step.Save] = uint32(ret)
		}
		status := "ok"
		if step.Expect != nil {
			want, err := vars.expect(step.Expect)
			if err != nil {
				return res, errors.Wrapf(err, "step %d expect", i+1)
			}
			if want != got {
				status = fmt.Sprintf("FAIL: want %s", want)
				res.Failures++
			}
		}
		fmt.Fprintf(out, "%3d %s %s = %s: %s\n", i+1, step.Env, desc, got, status)
	}
	return res, nil
}
