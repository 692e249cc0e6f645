package cmd

import (
	"flag"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/lunixbochs/exocorn/go/models"
)

type flagGroup struct {
	name  string
	flags []string
}

var flagGroups = []flagGroup{
	{"Kernel", []string{"config", "nenv", "npages", "retries"}},
	{"Tracing", []string{"strace", "color", "strsize", "to", "o"}},
	{"Logging", []string{"v", "log", "logdev", "metrics"}},
	{"Profiling", []string{"cpuprofile", "memprofile"}},
}

// flag name -> the models.Config field it overrides
var flagFields = map[string]string{
	"nenv":    "NEnv",
	"npages":  "NPages",
	"retries": "MaxSendRetries",
	"strace":  "TraceSys",
	"color":   "Color",
	"strsize": "Strsize",
	"to":      "TraceFile",
	"v":       "Verbose",
	"log":     "LogLevel",
	"logdev":  "LogDev",
	"metrics": "MetricsAddr",
}

func configField(config *models.Config, name string) (reflect.Value, reflect.StructField) {
	v := reflect.ValueOf(config).Elem()
	sf, ok := v.Type().FieldByName(name)
	if !ok {
		panic(models.Bugf("flag maps to unknown config field %s", name))
	}
	return v.FieldByIndex(sf.Index), sf
}

// applyFlags copies every flag set on the command line over config.
func applyFlags(fs *flag.FlagSet, config *models.Config) {
	fs.Visit(func(f *flag.Flag) {
		name, ok := flagFields[f.Name]
		if !ok {
			return
		}
		field, _ := configField(config, name)
		field.Set(reflect.ValueOf(f.Value.(flag.Getter).Get()))
	})
}

// configKeys names the file key and environment variable behind a flag.
func configKeys(flagName string) (key, env string, ok bool) {
	name, ok := flagFields[flagName]
	if !ok {
		return "", "", false
	}
	_, sf := configField(models.DefaultConfig(), name)
	return sf.Tag.Get("toml"), envPrefix + "_" + sf.Tag.Get("envconfig"), true
}

// printUsage lists the flags of fs by group. Flags no group claims belong
// to the sub-command and are listed last.
func printUsage(w io.Writer, fs *flag.FlagSet) {
	claimed := make(map[string]bool)
	var groups []flagGroup
	for _, g := range flagGroups {
		var names []string
		for _, name := range g.flags {
			if fs.Lookup(name) != nil {
				names = append(names, name)
				claimed[name] = true
			}
		}
		if len(names) > 0 {
			groups = append(groups, flagGroup{g.name, names})
		}
	}
	var own []string
	fs.VisitAll(func(f *flag.Flag) {
		if !claimed[f.Name] {
			own = append(own, f.Name)
		}
	})
	if len(own) > 0 {
		groups = append(groups, flagGroup{"Command", own})
	}

	wname, wdef := 0, 0
	fs.VisitAll(func(f *flag.Flag) {
		if len(f.Name) > wname {
			wname = len(f.Name)
		}
		if len(f.DefValue) > wdef {
			wdef = len(f.DefValue)
		}
	})
	lpad := strings.Repeat(" ", wname+wdef+8)
	wdesc := 80 - len(lpad)
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", g.name)
		for _, name := range g.flags {
			f := fs.Lookup(name)
			def := ""
			if f.DefValue != "" && f.DefValue != "[]" {
				def = "(" + f.DefValue + ")"
			}
			fmt.Fprintf(w, "  -%-*s %-*s ", wname, f.Name, wdef+3, def)
			for j, line := range wrap(f.Usage, wdesc) {
				if j > 0 {
					fmt.Fprint(w, lpad)
				}
				fmt.Fprintln(w, line)
			}
			if key, env, ok := configKeys(name); ok {
				fmt.Fprintf(w, "%s%s = ..., $%s\n", lpad, key, env)
			}
		}
	}
}

// wrap splits s on spaces into lines of at most width bytes. Words longer
// than width get a line to themselves.
func wrap(s string, width int) []string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(s) {
		if line != "" && len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = ""
		}
		if line != "" {
			line += " "
		}
		line += word
	}
	return append(lines, line)
}
