// Package imapmemserver implements an in-memory IMAP server.
package imapmemserver

import (
	"strings"
	"sync"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/imapserver"
)

// Server holds the user list for an in-memory IMAP server.
type Server struct {
	mutex sync.Mutex
	users map[string]*User
}

// New creates a new server.
func New() *Server {
	return &Server{
		users: make(map[string]*User),
	}
}

// NewSession creates a new IMAP session.
func (s *Server) NewSession() imapserver.Session {
	return &serverSession{server: s}
}

// user returns the user named username, or nil.
func (s *Server) user(username string) *User {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.users[username]
}

// AddUser adds user to the server.
func (s *Server) AddUser(user *User) {
	s.mutex.Lock()
	s.users[user.username] = user
	s.mutex.Unlock()
}

// sharedMailboxPrefix names the "Other Users" namespace, RFC 4314's
// intended use case for ACL: a mailbox shared by a user other than its
// owner.
const sharedMailboxPrefix = "~"

// sharedMailbox resolves a "~owner/mailbox" name to the owner's mailbox.
// ok is false if name isn't a shared-mailbox reference.
func (s *Server) sharedMailbox(name string) (owner *User, mbox *Mailbox, ok bool, err error) {
	if !strings.HasPrefix(name, sharedMailboxPrefix) {
		return nil, nil, false, nil
	}

	rest := strings.TrimPrefix(name, sharedMailboxPrefix)
	ownerName, mailboxName, found := strings.Cut(rest, string(mailboxDelim))
	if !found {
		return nil, nil, true, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeNonExistent,
			Text: "no such mailbox",
		}
	}

	owner = s.user(ownerName)
	if owner == nil {
		return nil, nil, true, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeNonExistent,
			Text: "no such mailbox",
		}
	}

	mbox, err = owner.mailbox(mailboxName)
	return owner, mbox, true, err
}

// serverSession is a session tied to a Server.
//
// Before authentication, UserSession is nil.
type serverSession struct {
	*UserSession
	server *Server
}

var _ imapserver.Session = (*serverSession)(nil)

// Login authenticates the session against the server's user list.
func (sess *serverSession) Login(username, password string) error {
	u := sess.server.user(username)
	if u == nil {
		return imapserver.ErrAuthFailed
	}
	if err := u.Login(username, password); err != nil {
		return err
	}
	sess.UserSession = NewUserSession(u, sess.server)
	return nil
}
