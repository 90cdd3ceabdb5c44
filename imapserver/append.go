package imapserver

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal"
	"github.com/coldwire/imapd/internal/imapwire"
)

// appendLimit is the maximum size of an APPEND payload.
const appendLimit = 100 * 1024 * 1024 // 100MiB

// appendMessage holds one fully-read message of a (possibly multi-message)
// APPEND command, RFC 3502 MULTIAPPEND.
type appendMessage struct {
	options imap.AppendOptions
	data    []byte
}

// handleAppend handles the APPEND command, RFC 9051 Section 6.3.11,
// extended to accept one or more message literals per RFC 3502
// MULTIAPPEND.
func (c *Conn) handleAppend(tag string, dec *imapwire.Decoder) error {
	var mailbox string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) {
		return dec.Err()
	}

	var messages []appendMessage
	for {
		if !dec.ExpectSP() {
			return dec.Err()
		}

		msg, err := c.readAppendMessage(dec)
		if err != nil {
			return err
		}
		messages = append(messages, msg)

		if !dec.SP() {
			break
		}
	}
	if !dec.ExpectCRLF() {
		return dec.Err()
	}

	if err := c.checkState(imap.ConnStateAuthenticated); err != nil {
		return err
	}

	// An empty message literal cancels the whole APPEND: nothing is
	// stored, even if earlier messages in the same command were valid.
	for _, msg := range messages {
		if len(msg.data) == 0 {
			return &imap.Error{
				Type: imap.StatusResponseTypeNo,
				Text: "APPEND cancelled: empty message",
			}
		}
	}

	var (
		uidValidity uint32
		uids        imap.UIDSet
		hasUID      bool
	)
	for _, msg := range messages {
		r := &bytesLiteralReader{Reader: bytes.NewReader(msg.data), size: int64(len(msg.data))}
		data, err := c.session.Append(mailbox, r, &msg.options)
		if err != nil {
			return err
		}
		if data != nil {
			uidValidity = data.UIDValidity
			uids.AddNum(data.UID)
			hasUID = true
		}
	}

	if err := c.poll("APPEND"); err != nil {
		return err
	}

	var data *imap.AppendData
	if hasUID {
		data = &imap.AppendData{UIDValidity: uidValidity}
	}
	return c.writeAppendOK(tag, data, uids)
}

// readAppendMessage reads a single "[flag-list SP] [date-time SP]
// [data-ext SP] literal" message group and fully buffers its body.
func (c *Conn) readAppendMessage(dec *imapwire.Decoder) (appendMessage, error) {
	var options imap.AppendOptions

	hasFlagList, err := dec.List(func() error {
		flag, err := internal.ExpectFlag(dec)
		if err != nil {
			return err
		}
		options.Flags = append(options.Flags, flag)
		return nil
	})
	if err != nil {
		return appendMessage{}, err
	}
	if hasFlagList && !dec.ExpectSP() {
		return appendMessage{}, dec.Err()
	}

	t, err := internal.DecodeDateTime(dec)
	if err != nil {
		return appendMessage{}, err
	}
	if !t.IsZero() && !dec.ExpectSP() {
		return appendMessage{}, dec.Err()
	}
	options.Time = t

	var dataExt string
	hasExt := dec.Atom(&dataExt)
	if hasExt {
		switch strings.ToUpper(dataExt) {
		case "UTF8":
			// '~' is the literal8 prefix.
			if !dec.ExpectSP() || !dec.ExpectSpecial('(') || !dec.ExpectSpecial('~') {
				return appendMessage{}, dec.Err()
			}
		default:
			return appendMessage{}, newClientBugError("unknown APPEND data extension")
		}
	} else {
		dec.Special('~') // tolerate a bare literal8 prefix without UTF8
	}

	lit, nonSync, err := dec.ExpectLiteralReader()
	if err != nil {
		return appendMessage{}, err
	}

	if lit.Size() > appendLimit {
		io.Copy(io.Discard, lit)
		return appendMessage{}, &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeTooBig,
			Text: fmt.Sprintf("literal size limited to %v bytes", appendLimit),
		}
	}
	if err := c.acceptLiteral(lit.Size(), nonSync); err != nil {
		return appendMessage{}, err
	}

	c.setReadTimeout(literalReadTimeout)
	buf, err := io.ReadAll(lit)
	c.setReadTimeout(cmdReadTimeout)
	if err != nil {
		return appendMessage{}, err
	}

	if hasExt && !dec.ExpectSpecial(')') {
		return appendMessage{}, dec.Err()
	}

	return appendMessage{options: options, data: buf}, nil
}

// bytesLiteralReader adapts an in-memory buffer to imap.LiteralReader.
type bytesLiteralReader struct {
	*bytes.Reader
	size int64
}

func (r *bytesLiteralReader) Size() int64 { return r.size }

// writeAppendOK writes a successful tagged APPEND response, including an
// APPENDUID response code (RFC 4315, extended for MULTIAPPEND by RFC 3502)
// when data is non-nil.
func (c *Conn) writeAppendOK(tag string, data *imap.AppendData, uids imap.UIDSet) error {
	enc := newResponseEncoder(c)
	defer enc.end()

	enc.Atom(tag).SP().Atom("OK").SP()
	if data != nil {
		enc.Special('[')
		enc.Atom("APPENDUID").SP().Number(data.UIDValidity).SP().NumSet(uids)
		enc.Special(']').SP()
	}
	enc.Text("APPEND completed")
	return enc.CRLF()
}
