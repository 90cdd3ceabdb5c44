package imapmemserver

import (
	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/imapserver"
)

var _ imapserver.SessionACL = (*UserSession)(nil)

// GetACL returns the rights granted on the mailbox named mailbox.
func (u *User) GetACL(mailbox string) (map[imap.RightsIdentifier]imap.RightSet, error) {
	mbox, err := u.mailbox(mailbox)
	if err != nil {
		return nil, err
	}

	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()

	acl := make(map[imap.RightsIdentifier]imap.RightSet, len(mbox.rights)+1)
	for identifier, rs := range mbox.rights {
		acl[identifier] = rs
	}
	acl[imap.RightsIdentifier(mbox.owner)] = imap.RightSetAll
	return acl, nil
}

// SetACL modifies the rights granted to identifier on the mailbox named
// mailbox.
func (u *User) SetACL(mailbox string, identifier imap.RightsIdentifier, mod imap.RightModification, rs imap.RightSet) error {
	mbox, err := u.mailbox(mailbox)
	if err != nil {
		return err
	}

	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()

	if string(identifier) == mbox.owner {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeCannot,
			Text: "cannot modify the rights of the mailbox owner",
		}
	}

	mbox.setRightsLocked(identifier, mod, rs)
	return nil
}

// DeleteACL removes any rights granted to identifier on the mailbox named
// mailbox.
func (u *User) DeleteACL(mailbox string, identifier imap.RightsIdentifier) error {
	mbox, err := u.mailbox(mailbox)
	if err != nil {
		return err
	}

	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()

	if string(identifier) == mbox.owner {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeCannot,
			Text: "cannot modify the rights of the mailbox owner",
		}
	}

	delete(mbox.rights, identifier)
	return nil
}

// ListRights returns the rights always granted to identifier, along with
// each right that may additionally be granted or withheld.
func (u *User) ListRights(mailbox string, identifier imap.RightsIdentifier) (imap.RightSet, []imap.RightSet, error) {
	if _, err := u.mailbox(mailbox); err != nil {
		return nil, nil, err
	}

	optional := make([]imap.RightSet, len(imap.RightSetAll))
	for i, right := range imap.RightSetAll {
		optional[i] = imap.RightSet{right}
	}
	return nil, optional, nil
}

// MyRights returns the rights granted to the current user on the mailbox
// named mailbox.
func (u *User) MyRights(mailbox string) (imap.RightSet, error) {
	mbox, err := u.mailbox(mailbox)
	if err != nil {
		return nil, err
	}

	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()

	return mbox.rightsLocked(imap.RightsIdentifier(u.username)), nil
}
