package script

import (
	"fmt"

	"github.com/lunixbochs/exocorn/go/cmd"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/script"
)

func Main(args []string) int {
	c := cmd.NewExocornCmd()
	c.ArgsUsage = "<script.yaml>"
	c.RunKernel = func(args []string) error {
		if len(args) != 1 {
			c.Flags.Usage()
			return models.ExitStatus(1)
		}
		s, err := script.Load(args[0])
		if err != nil {
			return err
		}
		res, err := script.Run(c.Kernel, s, c.Config.Output)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Config.Output, "%d steps, %d failed\n", res.Steps, res.Failures)
		if res.Failures > 0 {
			return models.ExitStatus(1)
		}
		return nil
	}
	return c.Run(args)
}

func init() { cmd.Register("script", "run a YAML syscall script and check the results", Main) }
