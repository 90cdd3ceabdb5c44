package imap

// CreateOptions holds options for the CREATE command.
type CreateOptions struct {
	// SpecialUse is the special-use attribute for the mailbox, RFC 6154.
	SpecialUse []MailboxAttr
}
