package imapmemserver

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/imapserver"
)

const mailboxDelim rune = '/'

// User represents a single IMAP account and its mailboxes.
type User struct {
	username     string
	passwordHash []byte

	mutex           sync.Mutex
	mailboxes       map[string]*Mailbox
	prevUidValidity uint32
	quotaLimits     map[imap.QuotaResourceType]int64
}

// NewUser creates a new user, hashing password with bcrypt.
//
// It panics if bcrypt rejects the password (only possible if password is
// longer than 72 bytes).
func NewUser(username, password string) *User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return &User{
		username:     username,
		passwordHash: hash,
		mailboxes:    make(map[string]*Mailbox),
	}
}

// Login verifies username and password against the user's credentials.
func (u *User) Login(username, password string) error {
	if username != u.username {
		return imapserver.ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return imapserver.ErrAuthFailed
	}
	return nil
}

// mailboxLocked returns the mailbox named name. The caller must hold u.mutex.
func (u *User) mailboxLocked(name string) (*Mailbox, error) {
	mbox := u.mailboxes[name]
	if mbox == nil {
		return nil, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeNonExistent,
			Text: "no such mailbox",
		}
	}
	return mbox, nil
}

// mailbox returns the mailbox named name.
func (u *User) mailbox(name string) (*Mailbox, error) {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.mailboxLocked(name)
}

// Status returns the status of the mailbox named name.
func (u *User) Status(name string, options *imap.StatusOptions) (*imap.StatusData, error) {
	mbox, err := u.mailbox(name)
	if err != nil {
		return nil, err
	}
	return mbox.StatusData(options), nil
}

// List writes a LIST response for every mailbox matching ref and patterns.
func (u *User) List(w *imapserver.ListWriter, ref string, patterns []string, options *imap.ListOptions) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	// TODO: fail if ref doesn't exist

	if len(patterns) == 0 {
		return w.WriteList(&imap.ListData{
			Attrs: []imap.MailboxAttr{imap.MailboxAttrNoSelect},
			Delim: mailboxDelim,
		})
	}

	var l []imap.ListData
	for name, mbox := range u.mailboxes {
		match := false
		for _, pattern := range patterns {
			match = imapserver.MatchList(name, mailboxDelim, ref, pattern)
			if match {
				break
			}
		}
		if !match {
			continue
		}

		data := mbox.list(options)
		if data != nil {
			l = append(l, *data)
		}
	}

	sort.Slice(l, func(i, j int) bool {
		return l[i].Mailbox < l[j].Mailbox
	})

	for _, data := range l {
		if err := w.WriteList(&data); err != nil {
			return err
		}
	}

	return nil
}

// Append appends a message to the mailbox named mailbox.
func (u *User) Append(mailbox string, r imap.LiteralReader, options *imap.AppendOptions) (*imap.AppendData, error) {
	mbox, err := u.mailbox(mailbox)
	if err != nil {
		return nil, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeTryCreate,
			Text: "no such mailbox",
		}
	}
	if err := u.checkQuota(r.Size()); err != nil {
		return nil, err
	}
	return mbox.appendLiteral(r, options)
}

// Create creates a new mailbox named name.
func (u *User) Create(name string, options *imap.CreateOptions) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	name = strings.TrimRight(name, string(mailboxDelim))

	if u.mailboxes[name] != nil {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeAlreadyExists,
			Text: "mailbox already exists",
		}
	}

	// UIDVALIDITY must change if the mailbox is deleted then re-created.
	u.prevUidValidity++
	u.mailboxes[name] = NewMailbox(name, u.prevUidValidity, u.username)
	return nil
}

// Delete deletes the mailbox named name.
func (u *User) Delete(name string) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if _, err := u.mailboxLocked(name); err != nil {
		return err
	}

	delete(u.mailboxes, name)
	return nil
}

// Rename renames the mailbox named oldName to newName.
func (u *User) Rename(oldName, newName string) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	newName = strings.TrimRight(newName, string(mailboxDelim))

	mbox, err := u.mailboxLocked(oldName)
	if err != nil {
		return err
	}

	if u.mailboxes[newName] != nil {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeAlreadyExists,
			Text: "mailbox already exists",
		}
	}

	mbox.rename(newName)
	u.mailboxes[newName] = mbox
	delete(u.mailboxes, oldName)
	return nil
}

// Subscribe subscribes to the mailbox named name.
func (u *User) Subscribe(name string) error {
	mbox, err := u.mailbox(name)
	if err != nil {
		return err
	}
	mbox.SetSubscribed(true)
	return nil
}

// Unsubscribe unsubscribes from the mailbox named name.
func (u *User) Unsubscribe(name string) error {
	mbox, err := u.mailbox(name)
	if err != nil {
		return err
	}
	mbox.SetSubscribed(false)
	return nil
}

// Namespace returns the user's personal namespace and the "Other Users"
// namespace used to address mailboxes shared via ACL, named "~user/box".
func (u *User) Namespace() (*imap.NamespaceData, error) {
	return &imap.NamespaceData{
		Personal: []imap.NamespaceDescriptor{{Delim: mailboxDelim}},
		Other:    []imap.NamespaceDescriptor{{Prefix: "~", Delim: mailboxDelim}},
	}, nil
}
