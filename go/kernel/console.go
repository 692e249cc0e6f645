package kernel

import (
	"io"
	"sync"
)

// Console is the kernel's character device: cputs writes to it and cgetc
// polls it without blocking.
type Console interface {
	io.Writer
	// Getc returns 0 if no input is pending.
	Getc() byte
}

// BufConsole writes output to W and serves input queued with Feed.
type BufConsole struct {
	W     io.Writer
	mu    sync.Mutex
	input []byte
}

func (c *BufConsole) Write(p []byte) (int, error) {
	if c.W == nil {
		return len(p), nil
	}
	return c.W.Write(p)
}

func (c *BufConsole) Feed(p []byte) {
	c.mu.Lock()
	c.input = append(c.input, p...)
	c.mu.Unlock()
}

func (c *BufConsole) Getc() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	// skip NULs so a 0 result always means "no input"
	for len(c.input) > 0 {
		b := c.input[0]
		c.input = c.input[1:]
		if b != 0 {
			return b
		}
	}
	return 0
}
