package main

import (
	"github.com/lunixbochs/exocorn/go/cmd"

	_ "github.com/lunixbochs/exocorn/go/cmd/run"

	_ "github.com/lunixbochs/exocorn/go/cmd/repl"
	_ "github.com/lunixbochs/exocorn/go/cmd/script"
	_ "github.com/lunixbochs/exocorn/go/cmd/trace"
)

func main() { cmd.Main() }
