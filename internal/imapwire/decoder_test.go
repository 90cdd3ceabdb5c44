package imapwire_test

import (
	"bufio"
	"strings"
	"testing"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

func newTestDecoder(s string) *imapwire.Decoder {
	return imapwire.NewDecoder(bufio.NewReader(strings.NewReader(s)), imapwire.ConnSideServer)
}

var peekNumSetCharTests = []struct {
	s    string
	want bool
}{
	{"1:5", true},
	{"42", true},
	{"*", true},
	{"*:10", true},
	{"ANSWERED", false},
	{"", false},
	{" 1:5", false},
}

func TestPeekNumSetChar(t *testing.T) {
	for _, test := range peekNumSetCharTests {
		dec := newTestDecoder(test.s)
		if got := dec.PeekNumSetChar(); got != test.want {
			t.Errorf("PeekNumSetChar() on %q = %v, want %v", test.s, got, test.want)
		}
	}
}

func TestPeekNumSetCharDoesNotConsume(t *testing.T) {
	dec := newTestDecoder("1:5 FOO")
	if !dec.PeekNumSetChar() {
		t.Fatal("PeekNumSetChar() = false, want true")
	}

	var numSet imap.NumSet
	if !dec.ExpectNumSet(imapwire.NumKindSeq, &numSet) {
		t.Fatalf("ExpectNumSet() failed: %v", dec.Err())
	}
	if got, want := numSet.String(), "1:5"; got != want {
		t.Errorf("numSet.String() = %q, want %q", got, want)
	}
}
