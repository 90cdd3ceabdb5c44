package imapmemserver

import (
	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/imapserver"
)

type (
	user    = User
	mailbox = MailboxView
)

// UserSession is a session tied to a particular user.
//
// UserSession implements imapserver.Session. Typically a UserSession pointer
// is embedded into a larger struct which overrides Login.
type UserSession struct {
	*user
	*mailbox
	server *Server
}

var _ imapserver.SessionIMAP4rev2 = (*UserSession)(nil)

// NewUserSession creates a new session for user. server is used to resolve
// "~owner/mailbox" shared mailbox names; it may be nil if sharing isn't
// needed.
func NewUserSession(user *User, server *Server) *UserSession {
	return &UserSession{user: user, server: server}
}

// resolveMailbox returns the mailbox named name along with the user that
// owns it, following the "~owner/mailbox" shared-mailbox convention when
// present.
func (sess *UserSession) resolveMailbox(name string) (owner *User, mbox *Mailbox, err error) {
	if sess.server != nil {
		if o, m, ok, err := sess.server.sharedMailbox(name); ok {
			return o, m, err
		}
	}
	mbox, err = sess.user.mailbox(name)
	return sess.user, mbox, err
}

// Close releases the session's selected mailbox, if any.
func (sess *UserSession) Close() error {
	if sess != nil && sess.mailbox != nil {
		sess.mailbox.Close()
	}
	return nil
}

// Select selects the mailbox named name.
func (sess *UserSession) Select(name string, options *imap.SelectOptions) (*imap.SelectData, error) {
	_, mbox, err := sess.resolveMailbox(name)
	if err != nil {
		return nil, err
	}
	if err := mbox.requireRight(sess.user.username, imap.RightRead); err != nil {
		return nil, err
	}
	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()
	sess.mailbox = mbox.NewView()
	return mbox.selectDataLocked(), nil
}

// Append appends a message to the mailbox named mailboxName, which may
// name a mailbox shared by another user.
func (sess *UserSession) Append(mailboxName string, r imap.LiteralReader, options *imap.AppendOptions) (*imap.AppendData, error) {
	owner, mbox, err := sess.resolveMailbox(mailboxName)
	if err != nil {
		return nil, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeTryCreate,
			Text: "no such mailbox",
		}
	}
	if err := mbox.requireRight(sess.user.username, imap.RightInsert); err != nil {
		return nil, err
	}
	if err := owner.checkQuota(r.Size()); err != nil {
		return nil, err
	}
	return mbox.appendLiteral(r, options)
}

// Fetch checks read access before writing FETCH responses for the
// selected mailbox.
func (sess *UserSession) Fetch(w *imapserver.FetchWriter, numSet imap.NumSet, options *imap.FetchOptions) error {
	if err := sess.mailbox.requireRight(sess.user.username, imap.RightRead); err != nil {
		return err
	}
	return sess.mailbox.Fetch(w, numSet, options)
}

// Store checks the rights implied by the requested flag changes before
// applying them to the selected mailbox.
func (sess *UserSession) Store(w *imapserver.FetchWriter, numSet imap.NumSet, flags *imap.StoreFlags, options *imap.StoreOptions) error {
	if err := sess.mailbox.requireStoreRight(sess.user.username, flags.Flags); err != nil {
		return err
	}
	return sess.mailbox.Store(w, numSet, flags, options)
}

// Expunge checks delete access before removing messages from the selected
// mailbox.
func (sess *UserSession) Expunge(w *imapserver.ExpungeWriter, uids *imap.UIDSet) error {
	if err := sess.mailbox.requireRight(sess.user.username, imap.RightDelete); err != nil {
		return err
	}
	return sess.mailbox.Expunge(w, uids)
}

// Unselect closes the currently selected mailbox.
func (sess *UserSession) Unselect() error {
	sess.mailbox.Close()
	sess.mailbox = nil
	return nil
}

// Copy copies the messages in numSet to the mailbox named destName.
func (sess *UserSession) Copy(numSet imap.NumSet, destName string) (*imap.CopyData, error) {
	_, dest, err := sess.resolveMailbox(destName)
	if err != nil {
		return nil, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeTryCreate,
			Text: "no such mailbox",
		}
	} else if sess.mailbox != nil && dest == sess.mailbox.Mailbox {
		return nil, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Text: "source and destination mailboxes are identical",
		}
	}
	if err := dest.requireRight(sess.user.username, imap.RightInsert); err != nil {
		return nil, err
	}

	var sourceUIDs, destUIDs imap.UIDSet
	sess.mailbox.forEach(numSet, func(seqNum uint32, msg *message) {
		appendData := dest.copyMsg(msg)
		sourceUIDs.AddNum(msg.uid)
		destUIDs.AddNum(appendData.UID)
	})

	return &imap.CopyData{
		UIDValidity: dest.uidValidity,
		SourceUIDs:  sourceUIDs,
		DestUIDs:    destUIDs,
	}, nil
}

// Move moves the messages in numSet to the mailbox named destName.
func (sess *UserSession) Move(w *imapserver.MoveWriter, numSet imap.NumSet, destName string) error {
	_, dest, err := sess.resolveMailbox(destName)
	if err != nil {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeTryCreate,
			Text: "no such mailbox",
		}
	} else if sess.mailbox != nil && dest == sess.mailbox.Mailbox {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Text: "source and destination mailboxes are identical",
		}
	}
	if err := dest.requireRight(sess.user.username, imap.RightInsert); err != nil {
		return err
	}
	if err := sess.mailbox.requireRight(sess.user.username, imap.RightDelete); err != nil {
		return err
	}

	sess.mailbox.mutex.Lock()
	defer sess.mailbox.mutex.Unlock()

	var sourceUIDs, destUIDs imap.UIDSet
	expunged := make(map[*message]struct{})
	sess.mailbox.forEachLocked(numSet, func(seqNum uint32, msg *message) {
		appendData := dest.copyMsg(msg)
		sourceUIDs.AddNum(msg.uid)
		destUIDs.AddNum(appendData.UID)
		expunged[msg] = struct{}{}
	})
	seqNums := sess.mailbox.expungeLocked(expunged)

	err = w.WriteCopyData(&imap.CopyData{
		UIDValidity: dest.uidValidity,
		SourceUIDs:  sourceUIDs,
		DestUIDs:    destUIDs,
	})
	if err != nil {
		return err
	}

	for _, seqNum := range seqNums {
		if err := w.WriteExpunge(sess.mailbox.tracker.EncodeSeqNum(seqNum)); err != nil {
			return err
		}
	}

	return nil
}

// Poll reports pending updates for the selected mailbox.
func (sess *UserSession) Poll(w *imapserver.UpdateWriter, allowExpunge bool) error {
	if sess.mailbox == nil {
		return nil
	}
	return sess.mailbox.Poll(w, allowExpunge)
}

// Idle blocks, reporting updates for the selected mailbox, until stop is
// closed.
func (sess *UserSession) Idle(w *imapserver.UpdateWriter, stop <-chan struct{}) error {
	if sess.mailbox == nil {
		return nil
	}
	return sess.mailbox.Idle(w, stop)
}
