package internal

import (
	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// ExpectMailboxAttrList reads a parenthesized list of backslash-prefixed
// mailbox attributes, as used by the CREATE command's USE option (RFC
// 6154) and returned in LIST responses.
func ExpectMailboxAttrList(dec *imapwire.Decoder) ([]imap.MailboxAttr, error) {
	var attrs []imap.MailboxAttr
	err := dec.ExpectList(func() error {
		if !dec.ExpectSpecial('\\') {
			return dec.Err()
		}
		var name string
		if !dec.ExpectAtom(&name) {
			return dec.Err()
		}
		attrs = append(attrs, imap.MailboxAttr("\\"+name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attrs, nil
}
