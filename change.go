package lf

import "fmt"

// Op tags one row mutation.
type Op int

const (
	OpNone   Op = 0
	OpPut    Op = 1
	OpDelete Op = 2
)

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

// Change describes one committed row mutation: the post image for puts,
// the pre image for deletes, both for updates.
type Change struct {
	Table  *Table
	Op     Op
	RowID  uint64
	OldRow *Row
	NewRow *Row
}
