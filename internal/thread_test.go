package internal_test

import (
	"testing"

	"github.com/coldwire/imapd/internal"
)

var normalizeSubjectTests = []struct {
	subject, want string
}{
	{"Hello", "Hello"},
	{"Re: Hello", "Hello"},
	{"RE: Hello", "Hello"},
	{"Re: Re: Hello", "Hello"},
	{"Fwd: Hello", "Hello"},
	{"Fw: Hello", "Hello"},
	{"[list-tag] Hello", "Hello"},
	{"Re: [list-tag] Hello", "Hello"},
	{"[list-tag] Re: Hello", "Hello"},
	{"Hello   World", "Hello World"},
	{"  Hello  ", "Hello"},
}

func TestNormalizeSubject(t *testing.T) {
	for _, test := range normalizeSubjectTests {
		got := internal.NormalizeSubject(test.subject)
		if got != test.want {
			t.Errorf("NormalizeSubject(%q) = %q, want %q", test.subject, got, test.want)
		}
	}
}

func TestNewThreadKey(t *testing.T) {
	k1 := internal.NewThreadKey("Re: Project status")
	k2 := internal.NewThreadKey("Project status")
	if k1 != k2 {
		t.Errorf("NewThreadKey of a reply should equal the original subject's key: %+v != %+v", k1, k2)
	}

	k3 := internal.NewThreadKey("Something else")
	if k1 == k3 {
		t.Errorf("unrelated subjects should not produce the same thread key")
	}
}
