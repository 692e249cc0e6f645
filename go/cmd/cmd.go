package cmd

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/logging"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/proc"
	"github.com/lunixbochs/exocorn/go/user"
)

// ExocornCmd is the shared front end of the sub-commands: flags, config,
// logging, metrics and tracing around one kernel and machine.
type ExocornCmd struct {
	Config  *models.Config
	Log     *zap.Logger
	Kernel  *kernel.Kernel
	Machine *proc.Machine

	SetupFlags func() error
	RunKernel  func(args []string) error
	Teardown   func()

	// shown after the options in the usage line
	ArgsUsage string

	Flags *flag.FlagSet
}

func NewExocornCmd() *ExocornCmd {
	return &ExocornCmd{Flags: flag.NewFlagSet("cli", flag.ExitOnError)}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (c *ExocornCmd) PrintError(err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		var frames [][]string
		for _, f := range err.StackTrace() {
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)
			frames = append(frames, []string{fileline, method})
			if method == "main" {
				break
			}
		}
		width := 0
		for _, f := range frames {
			if len(f[0]) > width {
				width = len(f[0])
			}
		}
		for _, f := range frames {
			fmt.Fprintf(os.Stderr, "%-*s | %s()\n", width, f[0], f[1])
		}
	}
}

// Run parses argv, builds the kernel and calls RunKernel. It returns the
// process exit code.
func (c *ExocornCmd) Run(argv []string) int {
	fs := c.Flags
	configPath := fs.String("config", "", "config file (default: exocorn.toml in the user config dir)")
	fs.Bool("strace", false, "trace syscalls")
	fs.Bool("color", false, "colorize traces")
	fs.Int("strsize", 30, "limit -strace'd strings to length (0 disables)")
	fs.String("to", "", "binary syscall trace output file")
	fs.Int("nenv", models.NENV, "environment slots (power of two)")
	fs.Int("npages", 2048, "physical frames")
	fs.Int("retries", 0, "ipc send retries before a sender gives up (0 retries forever)")
	fs.Bool("v", false, "verbose output")
	fs.String("log", "info", "log level (debug, info, warn, error)")
	fs.Bool("logdev", false, "human readable logs")
	fs.String("metrics", "", "serve prometheus metrics on this address")
	outfile := fs.String("o", "", "redirect trace and console output to file (default stderr)")
	cpuprofile := fs.String("cpuprofile", "", "write cpu profile to <file>")
	memprofile := fs.String("memprofile", "", "write mem profile to <file>")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options] %s\n\n", argv[0], c.ArgsUsage)
		printUsage(fs.Output(), fs)
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			panic(err)
		}
	}
	fs.Parse(argv[1:])

	config, err := LoadConfig(*configPath)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	// explicit flags win over the file and environment
	applyFlags(fs, config)
	if config.Verbose && config.LogLevel == "info" {
		config.LogLevel = "debug"
	}
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			c.PrintError(errors.Wrap(err, "opening output"))
			return 1
		}
		defer out.Close()
		config.Output = out
	}
	c.Config = config

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}
	if err := c.setup(); err != nil {
		c.PrintError(err)
		return 1
	}
	defer c.teardown(*memprofile)

	err = c.RunKernel(fs.Args())
	if err != nil {
		if e, ok := errors.Cause(err).(models.ExitStatus); ok {
			return int(e)
		}
		c.PrintError(err)
		return 1
	}
	return 0
}

func (c *ExocornCmd) setup() error {
	config := c.Config
	log, err := logging.New(logging.Config{Level: config.LogLevel, Development: config.LogDev})
	if err != nil {
		return errors.Wrap(err, "building logger")
	}
	c.Log = log

	reg := prometheus.NewRegistry()
	metrics := kernel.NewMetrics(reg)
	if config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(config.MetricsAddr, mux); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", config.MetricsAddr))
	}

	k, err := kernel.New(config, kernel.WithLogger(log), kernel.WithMetrics(metrics))
	if err != nil {
		return err
	}
	c.Kernel = k
	if config.TraceFile != "" {
		f, err := os.Create(config.TraceFile)
		if err != nil {
			return errors.Wrap(err, "creating trace file")
		}
		if err := k.StartTrace(f); err != nil {
			f.Close()
			return err
		}
	}
	c.Machine = proc.New(k, log)
	user.Register(c.Machine)
	return nil
}

func (c *ExocornCmd) teardown(memprofile string) {
	if c.Teardown != nil {
		c.Teardown()
	}
	if err := c.Kernel.StopTrace(); err != nil {
		c.PrintError(err)
	}
	if memprofile != "" {
		f, err := os.Create(memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not write heap profile: %s\n", err)
		} else {
			pprof.WriteHeapProfile(f)
			f.Close()
		}
	}
	c.Log.Sync()
}
