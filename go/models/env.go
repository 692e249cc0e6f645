package models

import "fmt"

// EnvID is a generation-tagged environment handle: the low bits select a
// slot, the bits above ENVGENSHIFT change every time the slot is reused.
// EnvID 0 always means "the calling environment".
type EnvID int32

const (
	LOG2NENV    = 10
	NENV        = 1 << LOG2NENV
	ENVGENSHIFT = 12
	MAXNENV     = 1 << ENVGENSHIFT
)

func (id EnvID) Slot(nenv int) int {
	return int(id) & (nenv - 1)
}

func (id EnvID) String() string {
	return fmt.Sprintf("%08x", uint32(id))
}

type Status uint32

const (
	ENV_FREE Status = iota
	ENV_DYING
	ENV_RUNNABLE
	ENV_NOT_RUNNABLE
)

var statusNames = []string{"ENV_FREE", "ENV_DYING", "ENV_RUNNABLE", "ENV_NOT_RUNNABLE"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if s == name {
			return Status(i), nil
		}
	}
	n, err := ParseWord(s)
	return Status(n), err
}

// Ipc holds the receive side of the rendezvous. The fields are only
// meaningful while Recving is set or right after a send completed.
type Ipc struct {
	Recving bool
	DstVA   uint32 // NoPage if no page was requested
	From    EnvID
	Value   uint32
	Perm    Perm // zero if no page was transferred
}

// Env is the user-visible part of an environment record, the same view
// a user program gets of the envs array.
type Env struct {
	ID     EnvID
	Parent EnvID
	Status Status
	Tf     Trapframe
	Upcall uint32
	Runs   int
	Ipc    Ipc
}
