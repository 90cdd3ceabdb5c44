package imapserver

import (
	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// handleGetQuota handles the GETQUOTA command, RFC 9208 Section 6.1.
func (c *Conn) handleGetQuota(dec *imapwire.Decoder) error {
	var root string
	if !dec.ExpectSP() || !dec.ExpectAString(&root) || !dec.ExpectCRLF() {
		return dec.Err()
	}
	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionQuota)
	if !ok {
		return newClientBugError("QUOTA not supported")
	}

	data, err := session.GetQuota(root)
	if err != nil {
		return err
	}
	if data == nil {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeNonExistent,
			Text: "no such quota root",
		}
	}

	enc := newResponseEncoder(c)
	defer enc.end()
	writeQuota(enc.Encoder, data)
	return enc.CRLF()
}

// handleGetQuotaRoot handles the GETQUOTAROOT command, RFC 9208 Section 6.2.
func (c *Conn) handleGetQuotaRoot(dec *imapwire.Decoder) error {
	var mailbox string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) || !dec.ExpectCRLF() {
		return dec.Err()
	}
	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionQuota)
	if !ok {
		return newClientBugError("QUOTA not supported")
	}

	roots, err := session.GetQuotaRoot(mailbox)
	if err != nil {
		return err
	}

	enc := newResponseEncoder(c)
	defer enc.end()
	enc.Atom("*").SP().Atom("QUOTAROOT").SP().Mailbox(mailbox)
	for _, data := range roots {
		enc.SP().String(data.Root)
	}
	if err := enc.CRLF(); err != nil {
		return err
	}

	for i := range roots {
		enc2 := newResponseEncoder(c)
		writeQuota(enc2.Encoder, &roots[i])
		if err := enc2.Encoder.CRLF(); err != nil {
			enc2.end()
			return err
		}
		enc2.end()
	}
	return nil
}

// handleSetQuota handles the SETQUOTA command, RFC 9208 Section 6.3.
func (c *Conn) handleSetQuota(dec *imapwire.Decoder) error {
	var root string
	if !dec.ExpectSP() || !dec.ExpectAString(&root) || !dec.ExpectSP() {
		return dec.Err()
	}

	limits := make(map[imap.QuotaResourceType]int64)
	err := dec.ExpectList(func() error {
		var name string
		var limit uint64
		if !dec.ExpectAtom(&name) || !dec.ExpectSP() || !dec.ExpectNumber64(&limit) {
			return dec.Err()
		}
		limits[imap.QuotaResourceType(name)] = int64(limit)
		return nil
	})
	if err != nil {
		return err
	}
	if !dec.ExpectCRLF() {
		return dec.Err()
	}

	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	session, ok := c.session.(SessionQuota)
	if !ok {
		return newClientBugError("QUOTA not supported")
	}

	return session.SetQuota(root, limits)
}

// writeQuota writes a QUOTA response line for data.
func writeQuota(enc *imapwire.Encoder, data *QuotaData) {
	enc.Atom("*").SP().Atom("QUOTA").SP().String(data.Root).SP()
	enc.List(len(data.Resources), func(i int) {
		r := data.Resources[i]
		enc.Atom(string(r.Type)).SP().Number64(uint64(r.Usage)).SP().Number64(uint64(r.Limit))
	})
}
