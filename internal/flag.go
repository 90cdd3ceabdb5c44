package internal

import (
	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// ExpectFlag reads a single message flag: either a system flag prefixed
// with '\' (e.g. \Seen) or a keyword flag (an atom).
func ExpectFlag(dec *imapwire.Decoder) (imap.Flag, error) {
	var name string
	if dec.Special('\\') {
		if !dec.ExpectAtom(&name) {
			return "", dec.Err()
		}
		return imap.Flag("\\" + name), nil
	}
	if !dec.ExpectAtom(&name) {
		return "", dec.Err()
	}
	return imap.Flag(name), nil
}
