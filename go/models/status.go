package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

var chSame = ansi.ColorCode("default:default")
var chNew = ansi.ColorCode("default+bu:default")

func colorPad(s, color string, pad int) string {
	length := len(s)
	s = color + s + ansi.Reset
	if length < pad {
		s = strings.Repeat(" ", pad-length) + s
	}
	return s
}

type ChangeMask struct {
	Old, New string
	Changed  bool
}

type Change struct {
	Old, New uint32
	Name     string
}

func (c *Change) Changed() bool {
	return c.Old != c.New
}

// Mask splits the hex rendering of both values into runs of changed and
// unchanged digits.
func (c *Change) Mask() []ChangeMask {
	s1, s2 := fmt.Sprintf("%08x", c.New), fmt.Sprintf("%08x", c.Old)
	pos := 0
	matching := true
	masks := make([]ChangeMask, 0, len(s1))
	for i := range s1 {
		if (s1[i] == s2[i]) != matching {
			if i > pos {
				masks = append(masks, ChangeMask{New: s1[pos:i], Old: s2[pos:i], Changed: !matching})
				pos = i
			}
			matching = !matching
		}
	}
	if pos < len(s1) {
		masks = append(masks, ChangeMask{New: s1[pos:], Old: s2[pos:], Changed: !matching})
	}
	return masks
}

func (c *Change) String(color bool) string {
	lineStart := fmt.Sprintf(" %4s 0x", c.Name)
	if !c.Changed() {
		return fmt.Sprintf(lineStart+"%08x", c.New)
	}
	if !color {
		return fmt.Sprintf("+"+lineStart+"%08x", c.New)
	}
	out := []string{fmt.Sprintf(" %s 0x", colorPad(c.Name, chNew, 4))}
	for _, mask := range c.Mask() {
		col := chSame
		if mask.Changed {
			col = chNew
		}
		out = append(out, col+mask.New)
	}
	out = append(out, ansi.Reset)
	return strings.Join(out, "")
}

type Changes []*Change

// String prints four registers per row.
func (cs Changes) String(color bool) string {
	var out []string
	for i, c := range cs {
		out = append(out, c.String(color))
		if i%4 == 3 || i == len(cs)-1 {
			out = append(out, "\n")
		} else {
			out = append(out, " ")
		}
	}
	return strings.Join(out, "")
}

func (cs Changes) Count() int {
	n := 0
	for _, c := range cs {
		if c.Changed() {
			n++
		}
	}
	return n
}

func (cs Changes) Find(name string) *Change {
	for _, c := range cs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// TfDiff remembers the last frame it saw for each environment so repeated
// dumps highlight what moved.
type TfDiff struct {
	old map[EnvID]Trapframe
}

func (d *TfDiff) Changes(id EnvID, tf *Trapframe) Changes {
	if d.old == nil {
		d.old = make(map[EnvID]Trapframe)
	}
	prev, seen := d.old[id]
	if !seen {
		prev = *tf
	}
	oldFields := prev.Fields()
	newFields := tf.Fields()
	cs := make(Changes, len(newFields))
	for i, f := range newFields {
		cs[i] = &Change{Name: f.Name, New: f.Val, Old: oldFields[i].Val}
	}
	d.old[id] = *tf
	return cs
}
