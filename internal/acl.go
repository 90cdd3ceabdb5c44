package internal

import (
	"github.com/coldwire/imapd"
)

// FormatRights formats a right modification and a right set into the
// string form used by SETACL, e.g. "+lrs" or "lrswipcda".
func FormatRights(rm imap.RightModification, rs imap.RightSet) string {
	s := ""
	if rm != imap.RightModificationReplace {
		s = string(rm)
	}
	return s + string(rs)
}
