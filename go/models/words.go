package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func hex32(n uint32) string {
	return fmt.Sprintf("%08x", n)
}

// ParseWord parses a machine word written in Go literal syntax (0x, 0b, 0o
// prefixes). Negative values are accepted and wrap like an int32 cast.
func ParseWord(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, errors.Wrapf(err, "bad word %q", s)
		}
		return uint32(int32(n)), nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "bad word %q", s)
	}
	return uint32(n), nil
}
