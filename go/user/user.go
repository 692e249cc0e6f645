// Package user holds the built-in user programs.
package user

import (
	"sort"

	"github.com/lunixbochs/exocorn/go/proc"
)

var programs = map[string]proc.Program{
	"echo":           Echo,
	"hello":          Hello,
	"yield":          Yield,
	"buggyhello":     BuggyHello,
	"pingpong":       PingPong,
	"pingpong.child": pingPongChild,
	"primes":         Primes,
	"primes.stage":   primeStage,
	"sendpage":       SendPage,
	"sendpage.child": sendPageChild,
	"uptime":         Uptime,
}

// Register adds every program to m, in name order so entry addresses are
// stable between runs.
func Register(m *proc.Machine) {
	for _, name := range Names() {
		m.Register(name, programs[name])
	}
}

func Names() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
