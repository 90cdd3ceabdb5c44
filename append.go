package imap

import (
	"time"
)

// AppendOptions holds options for the APPEND command.
type AppendOptions struct {
	Flags []Flag
	Time  time.Time
}

// AppendData is the data returned by the APPEND command.
type AppendData struct {
	UID         UID    // requires UIDPLUS or IMAP4rev2
	UIDValidity uint32
}
