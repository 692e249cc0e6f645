package models

import "fmt"

// Bug is the panic value for a broken kernel invariant. Anything that
// recovers panics from user code must re-panic a *Bug.
type Bug struct {
	Msg string
}

func (b *Bug) Error() string {
	return "kernel bug: " + b.Msg
}

func Bugf(format string, a ...interface{}) *Bug {
	return &Bug{Msg: fmt.Sprintf(format, a...)}
}
