package repl

import (
	"github.com/lunixbochs/exocorn/go/cmd"
	"github.com/lunixbochs/exocorn/go/ui"
)

func Main(args []string) int {
	c := cmd.NewExocornCmd()
	c.RunKernel = func(args []string) error {
		r, err := ui.NewReadline(c.Kernel)
		if err != nil {
			return err
		}
		r.Printf("exocorn syscall repl, boot %s. Type help for commands.\n", c.Kernel.BootID())
		return r.Run()
	}
	return c.Run(args)
}

func init() { cmd.Register("repl", "make syscalls by hand from an interactive prompt", Main) }
