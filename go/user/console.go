package user

import (
	"github.com/lunixbochs/exocorn/go/proc"
	"github.com/lunixbochs/exocorn/go/ulib"
)

// Echo copies pending console input back to the console, one line per
// cputs, and exits once the input runs dry.
func Echo(p *proc.Proc) {
	var line []byte
	for {
		c := ulib.Cgetc(p)
		if c == 0 {
			break
		}
		line = append(line, c)
		if c == '\n' {
			ulib.Cputs(p, string(line))
			line = line[:0]
		}
	}
	if len(line) > 0 {
		ulib.Cputs(p, string(line)+"\n")
	}
}

func Uptime(p *proc.Proc) {
	ulib.Cprintf(p, "up %d ms\n", ulib.TimeMsec(p))
}
