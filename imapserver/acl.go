package imapserver

import (
	"sort"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// handleGetACL handles the GETACL command, RFC 4314 Section 3.3.
func (c *Conn) handleGetACL(dec *imapwire.Decoder) error {
	var mailbox string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) || !dec.ExpectCRLF() {
		return dec.Err()
	}
	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionACL)
	if !ok {
		return newClientBugError("ACL not supported")
	}

	acl, err := session.GetACL(mailbox)
	if err != nil {
		return err
	}

	identifiers := make([]imap.RightsIdentifier, 0, len(acl))
	for identifier := range acl {
		identifiers = append(identifiers, identifier)
	}
	sort.Slice(identifiers, func(i, j int) bool { return identifiers[i] < identifiers[j] })

	enc := newResponseEncoder(c)
	defer enc.end()
	enc.Atom("*").SP().Atom("ACL").SP().Mailbox(mailbox)
	for _, identifier := range identifiers {
		enc.SP().String(string(identifier)).SP().String(acl[identifier].String())
	}
	return enc.CRLF()
}

// handleSetACL handles the SETACL command, RFC 4314 Section 3.1.
func (c *Conn) handleSetACL(dec *imapwire.Decoder) error {
	var mailbox, identifierStr, rightsStr string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) || !dec.ExpectSP() ||
		!dec.ExpectAString(&identifierStr) || !dec.ExpectSP() || !dec.ExpectAString(&rightsStr) || !dec.ExpectCRLF() {
		return dec.Err()
	}
	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionACL)
	if !ok {
		return newClientBugError("ACL not supported")
	}

	mod, rs := parseRights(rightsStr)
	return session.SetACL(mailbox, imap.RightsIdentifier(identifierStr), mod, rs)
}

// handleDeleteACL handles the DELETEACL command, RFC 4314 Section 3.2.
func (c *Conn) handleDeleteACL(dec *imapwire.Decoder) error {
	var mailbox, identifierStr string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) || !dec.ExpectSP() || !dec.ExpectAString(&identifierStr) || !dec.ExpectCRLF() {
		return dec.Err()
	}
	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionACL)
	if !ok {
		return newClientBugError("ACL not supported")
	}

	return session.DeleteACL(mailbox, imap.RightsIdentifier(identifierStr))
}

// handleListRights handles the LISTRIGHTS command, RFC 4314 Section 3.4.
func (c *Conn) handleListRights(dec *imapwire.Decoder) error {
	var mailbox, identifierStr string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) || !dec.ExpectSP() || !dec.ExpectAString(&identifierStr) || !dec.ExpectCRLF() {
		return dec.Err()
	}
	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionACL)
	if !ok {
		return newClientBugError("ACL not supported")
	}

	required, optional, err := session.ListRights(mailbox, imap.RightsIdentifier(identifierStr))
	if err != nil {
		return err
	}

	enc := newResponseEncoder(c)
	defer enc.end()
	enc.Atom("*").SP().Atom("LISTRIGHTS").SP().Mailbox(mailbox).SP().String(identifierStr)
	enc.SP().String(required.String())
	for _, rs := range optional {
		enc.SP().String(rs.String())
	}
	return enc.CRLF()
}

// handleMyRights handles the MYRIGHTS command, RFC 4314 Section 3.5.
func (c *Conn) handleMyRights(dec *imapwire.Decoder) error {
	var mailbox string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) || !dec.ExpectCRLF() {
		return dec.Err()
	}
	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionACL)
	if !ok {
		return newClientBugError("ACL not supported")
	}

	rs, err := session.MyRights(mailbox)
	if err != nil {
		return err
	}

	enc := newResponseEncoder(c)
	defer enc.end()
	enc.Atom("*").SP().Atom("MYRIGHTS").SP().Mailbox(mailbox).SP().String(rs.String())
	return enc.CRLF()
}

// parseRights parses a SETACL right modification argument, e.g. "+lrs",
// "-lrs" or "lrswipcda".
func parseRights(s string) (imap.RightModification, imap.RightSet) {
	if s == "" {
		return imap.RightModificationReplace, nil
	}
	switch s[0] {
	case '+':
		return imap.RightModificationAdd, imap.RightSet(s[1:])
	case '-':
		return imap.RightModificationRemove, imap.RightSet(s[1:])
	default:
		return imap.RightModificationReplace, imap.RightSet(s)
	}
}
