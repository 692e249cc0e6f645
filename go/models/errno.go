package models

import "fmt"

// Errno is a recoverable syscall error. The value is the negative result
// word the syscall returns.
type Errno int32

const (
	E_BAD_ENV      Errno = -2 // environment doesn't exist or otherwise cannot be used
	E_INVAL        Errno = -3 // invalid parameter
	E_NO_MEM       Errno = -4 // request failed due to memory shortage
	E_NO_FREE_ENV  Errno = -5 // attempt to create a new environment beyond the maximum allowed
	E_IPC_NOT_RECV Errno = -7 // attempt to send to env that is not recving
	E_RETRY        Errno = -8 // device busy, try again
)

var errnoNames = map[Errno]string{
	E_BAD_ENV:      "E_BAD_ENV",
	E_INVAL:        "E_INVAL",
	E_NO_MEM:       "E_NO_MEM",
	E_NO_FREE_ENV:  "E_NO_FREE_ENV",
	E_IPC_NOT_RECV: "E_IPC_NOT_RECV",
	E_RETRY:        "E_RETRY",
}

var errnoText = map[Errno]string{
	E_BAD_ENV:      "bad environment",
	E_INVAL:        "invalid parameter",
	E_NO_MEM:       "out of memory",
	E_NO_FREE_ENV:  "out of environments",
	E_IPC_NOT_RECV: "env is not recving",
	E_RETRY:        "try again",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown error %d", int32(e))
}

func (e Errno) Name() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return fmt.Sprintf("%d", int32(e))
}

func (e Errno) Valid() bool {
	_, ok := errnoNames[e]
	return ok
}

// ParseErrno maps a name like "E_INVAL" back to its Errno.
func ParseErrno(name string) (Errno, bool) {
	for e, n := range errnoNames {
		if n == name {
			return e, true
		}
	}
	return 0, false
}

// ResultErr turns a raw result word into an error, nil for non-negative results.
func ResultErr(ret int32) error {
	if ret >= 0 {
		return nil
	}
	return Errno(ret)
}
