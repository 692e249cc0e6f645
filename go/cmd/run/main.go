package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/lunixbochs/exocorn/go/cmd"
	"github.com/lunixbochs/exocorn/go/models"
)

func Main(args []string) int {
	c := cmd.NewExocornCmd()
	c.ArgsUsage = "<program> [program...]"
	var list *bool
	var input *string
	c.SetupFlags = func() error {
		list = c.Flags.Bool("list", false, "list built-in programs and exit")
		input = c.Flags.String("input", "", "console input queued for cgetc")
		return nil
	}
	c.RunKernel = func(args []string) error {
		m := c.Machine
		if *list {
			for _, name := range m.Programs() {
				if !strings.Contains(name, ".") {
					fmt.Println(name)
				}
			}
			return nil
		}
		if len(args) == 0 {
			c.Flags.Usage()
			return models.ExitStatus(1)
		}
		if *input != "" {
			if feeder, ok := c.Kernel.Console().(interface{ Feed([]byte) }); ok {
				feeder.Feed([]byte(*input))
			}
		}
		for _, name := range args {
			if _, err := m.Spawn(name); err != nil {
				return err
			}
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		return m.Run(ctx)
	}
	return c.Run(args)
}

func init() { cmd.Register("run", "run built-in user programs until every environment exits", Main) }
