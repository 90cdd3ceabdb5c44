package imapserver

import (
	"testing"

	"github.com/coldwire/imapd"
)

var parseRightsTests = []struct {
	s   string
	mod imap.RightModification
	rs  imap.RightSet
}{
	{"", imap.RightModificationReplace, nil},
	{"lrs", imap.RightModificationReplace, imap.RightSet("lrs")},
	{"+lrs", imap.RightModificationAdd, imap.RightSet("lrs")},
	{"-lrs", imap.RightModificationRemove, imap.RightSet("lrs")},
	{"+", imap.RightModificationAdd, imap.RightSet("")},
}

func TestParseRights(t *testing.T) {
	for _, test := range parseRightsTests {
		mod, rs := parseRights(test.s)
		if mod != test.mod || !rs.Equal(test.rs) {
			t.Errorf("parseRights(%q) = (%v, %v), want (%v, %v)", test.s, mod, rs, test.mod, test.rs)
		}
	}
}
