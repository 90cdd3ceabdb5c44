package imapmemserver

import (
	"bytes"
	"testing"

	"github.com/coldwire/imapd"
)

func newTestServer(t *testing.T) (*Server, *User, *User) {
	t.Helper()

	srv := New()
	alice := NewUser("alice", "pass")
	bob := NewUser("bob", "pass")
	srv.AddUser(alice)
	srv.AddUser(bob)

	if err := alice.Create("shared", &imap.CreateOptions{}); err != nil {
		t.Fatalf("Create() = %v", err)
	}

	return srv, alice, bob
}

// TestUserSessionSelectDeniesWithoutRights checks that SELECT on another
// user's mailbox fails with NOPERM until the owner grants RightRead.
func TestUserSessionSelectDeniesWithoutRights(t *testing.T) {
	srv, _, bob := newTestServer(t)
	bobSess := NewUserSession(bob, srv)

	_, err := bobSess.Select("~alice/shared", &imap.SelectOptions{})
	imapErr, ok := err.(*imap.Error)
	if !ok || imapErr.Code != imap.ResponseCodeNoPerm {
		t.Fatalf("Select() without rights = %v, want NOPERM", err)
	}
}

// TestUserSessionSelectAllowsAfterGrant checks that granting "r" to another
// user lets them SELECT the shared mailbox.
func TestUserSessionSelectAllowsAfterGrant(t *testing.T) {
	srv, alice, bob := newTestServer(t)
	if err := alice.SetACL("shared", imap.RightsIdentifier(bob.username), imap.RightModificationReplace, imap.RightSet("r")); err != nil {
		t.Fatalf("SetACL() = %v", err)
	}

	bobSess := NewUserSession(bob, srv)
	data, err := bobSess.Select("~alice/shared", &imap.SelectOptions{})
	if err != nil {
		t.Fatalf("Select() = %v", err)
	}
	if data == nil {
		t.Fatal("Select() returned nil data")
	}
}

// TestUserSessionAppendRequiresInsert checks that APPEND to a shared
// mailbox requires RightInsert even when RightRead is granted.
func TestUserSessionAppendRequiresInsert(t *testing.T) {
	srv, alice, bob := newTestServer(t)
	if err := alice.SetACL("shared", imap.RightsIdentifier(bob.username), imap.RightModificationReplace, imap.RightSet("r")); err != nil {
		t.Fatalf("SetACL() = %v", err)
	}

	bobSess := NewUserSession(bob, srv)
	msg := []byte("Subject: hi\r\n\r\nbody\r\n")
	_, err := bobSess.Append("~alice/shared", &bytesLiteralReaderForTest{Reader: bytes.NewReader(msg), data: msg}, &imap.AppendOptions{})
	imapErr, ok := err.(*imap.Error)
	if !ok || imapErr.Code != imap.ResponseCodeNoPerm {
		t.Fatalf("Append() without insert right = %v, want NOPERM", err)
	}

	if err := alice.SetACL("shared", imap.RightsIdentifier(bob.username), imap.RightModificationAdd, imap.RightSet("i")); err != nil {
		t.Fatalf("SetACL() = %v", err)
	}
	if _, err := bobSess.Append("~alice/shared", &bytesLiteralReaderForTest{Reader: bytes.NewReader(msg), data: msg}, &imap.AppendOptions{}); err != nil {
		t.Fatalf("Append() after granting insert = %v", err)
	}
}

// TestMailboxOwnerAlwaysHasAllRights checks that the owner is never gated
// by its own rights map.
func TestMailboxOwnerAlwaysHasAllRights(t *testing.T) {
	srv, alice, _ := newTestServer(t)
	aliceSess := NewUserSession(alice, srv)

	if _, err := aliceSess.Select("shared", &imap.SelectOptions{}); err != nil {
		t.Fatalf("Select() by owner = %v", err)
	}
}

// bytesLiteralReaderForTest adapts an in-memory buffer to imap.LiteralReader.
type bytesLiteralReaderForTest struct {
	*bytes.Reader
	data []byte
}

func (r *bytesLiteralReaderForTest) Size() int64 { return int64(len(r.data)) }
