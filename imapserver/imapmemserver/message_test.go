package imapmemserver

import (
	"testing"

	"github.com/coldwire/imapd"
)

// TestMessageStoreStripsRecent checks that \Recent can never be set or
// cleared by a STORE operation, and survives a STORE FLAGS (replace).
func TestMessageStoreStripsRecent(t *testing.T) {
	recent := canonicalFlag(imap.FlagRecent)
	seen := canonicalFlag(imap.FlagSeen)
	flagged := canonicalFlag(imap.FlagFlagged)

	msg := &message{flags: map[imap.Flag]struct{}{
		recent: {},
	}}

	msg.store(&imap.StoreFlags{
		Op:    imap.StoreFlagsAdd,
		Flags: []imap.Flag{imap.FlagRecent, imap.FlagSeen},
	})
	if _, ok := msg.flags[seen]; !ok {
		t.Fatal("\\Seen flag wasn't added")
	}
	if _, ok := msg.flags[recent]; !ok {
		t.Fatal("\\Recent flag was cleared by an unrelated STORE ADD")
	}

	msg.store(&imap.StoreFlags{
		Op:    imap.StoreFlagsSet,
		Flags: []imap.Flag{imap.FlagFlagged},
	})
	if _, ok := msg.flags[recent]; !ok {
		t.Fatal("\\Recent flag didn't survive a STORE FLAGS (replace)")
	}
	if _, ok := msg.flags[flagged]; !ok {
		t.Fatal("\\Flagged flag wasn't set")
	}

	msg.store(&imap.StoreFlags{
		Op:    imap.StoreFlagsDel,
		Flags: []imap.Flag{imap.FlagRecent},
	})
	if _, ok := msg.flags[recent]; !ok {
		t.Fatal("\\Recent flag was cleared by a client-requested STORE DEL")
	}
}

// TestMailboxFirstUnseenLocked checks the sequence number of the first
// message lacking \Seen, as reported by SELECT's OK [UNSEEN] code.
func TestMailboxFirstUnseenLocked(t *testing.T) {
	mbox := NewMailbox("INBOX", 1, "alice")
	mbox.appendBytes([]byte("a"), &imap.AppendOptions{Flags: []imap.Flag{imap.FlagSeen}})
	mbox.appendBytes([]byte("b"), &imap.AppendOptions{})
	mbox.appendBytes([]byte("c"), &imap.AppendOptions{Flags: []imap.Flag{imap.FlagSeen}})

	if got := mbox.firstUnseenLocked(); got != 2 {
		t.Fatalf("firstUnseenLocked() = %v, want 2", got)
	}

	mbox.l[1].flags[canonicalFlag(imap.FlagSeen)] = struct{}{}
	if got := mbox.firstUnseenLocked(); got != 0 {
		t.Fatalf("firstUnseenLocked() = %v, want 0 once every message is seen", got)
	}
}
