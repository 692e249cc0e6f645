package models

import "strings"

// Perm is the set of page permission bits that may cross the syscall boundary.
type Perm uint32

const (
	PTE_P Perm = 1 << 0
	PTE_W Perm = 1 << 1
	PTE_U Perm = 1 << 2

	// every bit a user may pass in a perm argument
	PTE_SYSCALL = PTE_P | PTE_W | PTE_U
)

func (p Perm) Has(bits Perm) bool {
	return p&bits == bits
}

// ValidUser is true iff PTE_P and PTE_U are set, PTE_W is optional,
// and nothing else is set.
func (p Perm) ValidUser() bool {
	return p&^PTE_SYSCALL == 0 && p.Has(PTE_P|PTE_U)
}

// Grantable checks a requested perm against the grantor's own mapping:
// write may only be passed on if the source is itself writable.
func (p Perm) Grantable(src Perm) bool {
	if !p.ValidUser() || !src.Has(PTE_P|PTE_U) {
		return false
	}
	return !p.Has(PTE_W) || src.Has(PTE_W)
}

func (p Perm) String() string {
	if p == 0 {
		return "0"
	}
	var out []string
	names := []string{"PTE_P", "PTE_W", "PTE_U"}
	for i, name := range names {
		if p&(1<<uint(i)) != 0 {
			out = append(out, name)
		}
	}
	if extra := p &^ PTE_SYSCALL; extra != 0 {
		out = append(out, "0x"+strings.TrimLeft(hex32(uint32(extra)), "0"))
	}
	return strings.Join(out, "|")
}

// ParsePerm accepts "PTE_P|PTE_U" style names, "p", "u", "w" shorthands,
// or a plain number.
func ParsePerm(s string) (Perm, error) {
	var p Perm
	for _, part := range strings.Split(s, "|") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "pte_p", "p":
			p |= PTE_P
		case "pte_w", "w":
			p |= PTE_W
		case "pte_u", "u":
			p |= PTE_U
		case "pte_syscall":
			p |= PTE_SYSCALL
		default:
			n, err := ParseWord(part)
			if err != nil {
				return 0, err
			}
			p |= Perm(n)
		}
	}
	return p, nil
}
