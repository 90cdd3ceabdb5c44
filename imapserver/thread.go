package imapserver

import (
	"strings"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// handleThread handles the THREAD command, RFC 5256 Section 4.
func (c *Conn) handleThread(dec *imapwire.Decoder, kind NumKind) error {
	var algo string
	if !dec.ExpectSP() || !dec.ExpectAtom(&algo) || !dec.ExpectSP() {
		return dec.Err()
	}

	var charset string
	if !dec.ExpectAString(&charset) {
		return dec.Err()
	}
	if !strings.EqualFold(charset, "UTF-8") && !strings.EqualFold(charset, "US-ASCII") {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeBadCharset,
			Text: "unsupported charset",
		}
	}

	if !dec.ExpectSP() {
		return dec.Err()
	}
	criteria, err := readSearchKey(dec, kind)
	if err != nil {
		return err
	}
	if err := readRemainingSearchKeys(dec, criteria, kind); err != nil {
		return err
	}

	if err := c.checkState(imap.ConnStateSelected); err != nil {
		return err
	}

	session, ok := c.session.(SessionThread)
	if !ok {
		return newClientBugError("THREAD not supported")
	}

	algorithm := imap.ThreadAlgorithm(strings.ToUpper(algo))
	roots, err := session.Thread(algorithm, criteria)
	if err != nil {
		return err
	}

	enc := newResponseEncoder(c)
	defer enc.end()
	enc.Atom("*").SP().Atom("THREAD")
	if len(roots) > 0 {
		enc.SP()
		writeThreadNodes(enc.Encoder, roots)
	}
	return enc.CRLF()
}

// writeThreadNodes writes a list of sibling thread nodes as a
// parenthesized list of thread-lists, RFC 5256 Section 4.
func writeThreadNodes(enc *imapwire.Encoder, nodes []ThreadNode) {
	for i, node := range nodes {
		if i > 0 {
			enc.SP()
		}
		writeThreadNode(enc, node)
	}
}

// writeThreadNode writes a single thread node. A linear chain of
// single-child nodes is flattened onto one level, e.g. "(1 2 5)"; a
// branch point emits one nested thread-list per child with no
// separator between them, e.g. "(1 2 5(3 4)(6 7))", per the
// thread-list grammar.
func writeThreadNode(enc *imapwire.Encoder, node ThreadNode) {
	enc.Special('(')
	cur := node
	for {
		enc.Number(uint32(cur.UID))
		switch len(cur.Children) {
		case 0:
			enc.Special(')')
			return
		case 1:
			enc.SP()
			cur = cur.Children[0]
		default:
			for _, child := range cur.Children {
				writeThreadNode(enc, child)
			}
			enc.Special(')')
			return
		}
	}
}
