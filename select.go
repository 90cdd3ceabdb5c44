package imap

// SelectOptions holds options for the SELECT or EXAMINE command.
type SelectOptions struct {
	ReadOnly  bool
	CondStore bool // requires CONDSTORE
}

// SelectData is the data returned by the SELECT command.
//
// In the older RFC 2060, PermanentFlags, UIDNext and UIDValidity are
// optional.
type SelectData struct {
	// Flags defined for this mailbox
	Flags []Flag
	// Flags the client can permanently change
	PermanentFlags []Flag
	// Number of messages in this mailbox (i.e. "EXISTS")
	NumMessages uint32
	UIDNext     UID
	UIDValidity uint32
	// Unseen is the sequence number of the first unseen message, or 0 if
	// there is none or the backend doesn't report it.
	Unseen uint32

	List *ListData // requires IMAP4rev2

	HighestModSeq uint64 // requires CONDSTORE
}
