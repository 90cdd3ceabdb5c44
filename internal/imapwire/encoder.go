package imapwire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/utf7"
)

// Encoder writes IMAP command or response syntax to a buffered writer.
//
// Every method except CRLF and Literal returns the Encoder itself so calls
// can be chained, e.g. enc.Atom(tag).SP().Atom("OK").SP().Text(msg).CRLF().
type Encoder struct {
	w    *bufio.Writer
	side ConnSide

	// QuotedUTF8 makes String prefer quoted-string encoding over literal
	// even for non-ASCII text, for peers that enabled UTF8=ACCEPT.
	QuotedUTF8 bool
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w *bufio.Writer, side ConnSide) *Encoder {
	return &Encoder{w: w, side: side}
}

// CRLF writes a CRLF and flushes the underlying writer.
func (e *Encoder) CRLF() error {
	if _, err := e.w.WriteString("\r\n"); err != nil {
		return err
	}
	return e.w.Flush()
}

// Atom writes an atom verbatim.
func (e *Encoder) Atom(s string) *Encoder {
	e.w.WriteString(s)
	return e
}

// SP writes a single space.
func (e *Encoder) SP() *Encoder {
	e.w.WriteByte(' ')
	return e
}

// Special writes a single special character, e.g. '(' or '['.
func (e *Encoder) Special(b byte) *Encoder {
	e.w.WriteByte(b)
	return e
}

// Text writes free-form text, as found after a status response code.
func (e *Encoder) Text(s string) *Encoder {
	e.w.WriteString(s)
	return e
}

// NIL writes the NIL atom.
func (e *Encoder) NIL() *Encoder {
	e.w.WriteString("NIL")
	return e
}

// Number writes an unsigned 32-bit number.
func (e *Encoder) Number(n uint32) *Encoder {
	e.w.WriteString(strconv.FormatUint(uint64(n), 10))
	return e
}

// Number64 writes an unsigned 64-bit number.
func (e *Encoder) Number64(n uint64) *Encoder {
	e.w.WriteString(strconv.FormatUint(n, 10))
	return e
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '"' || b == '\\' || b == '\r' || b == '\n' {
			return true
		}
		if !isAtomChar(b) {
			return true
		}
	}
	return false
}

func needsLiteral(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\r' || b == '\n' || b >= 0x80 {
			return true
		}
	}
	return false
}

// Quoted writes a quoted string, escaping '\\' and '"'.
func (e *Encoder) Quoted(s string) *Encoder {
	e.w.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			e.w.WriteByte('\\')
		}
		e.w.WriteByte(s[i])
	}
	e.w.WriteByte('"')
	return e
}

// String writes a string using the most compact encoding that fits: an
// atom when possible, a quoted-string next, and a synchronizing literal
// only when the value contains bytes a quoted-string can't carry (or
// non-ASCII bytes, unless QuotedUTF8 is set).
func (e *Encoder) String(s string) *Encoder {
	if !e.QuotedUTF8 && needsLiteral(s) {
		w := e.Literal(int64(len(s)), nil)
		io.WriteString(w, s)
		w.Close()
		return e
	}
	if needsQuoting(s) {
		return e.Quoted(s)
	}
	return e.Atom(s)
}

// Mailbox writes a mailbox name, encoding it as modified UTF-7 unless it's
// "INBOX".
func (e *Encoder) Mailbox(name string) *Encoder {
	if strings.EqualFold(name, "INBOX") {
		return e.Atom("INBOX")
	}
	return e.String(utf7.Encode(name))
}

// Flag writes a message flag.
func (e *Encoder) Flag(flag imap.Flag) *Encoder {
	return e.Atom(string(flag))
}

// NumSet writes a sequence-set or UID set.
func (e *Encoder) NumSet(numSet imap.NumSet) *Encoder {
	return e.Atom(numSet.String())
}

// UID writes a message UID.
func (e *Encoder) UID(uid imap.UID) *Encoder {
	return e.Number(uint32(uid))
}

// MailboxAttr writes a mailbox attribute.
func (e *Encoder) MailboxAttr(attr imap.MailboxAttr) *Encoder {
	return e.Atom(string(attr))
}

// BeginList writes an opening parenthesis.
func (e *Encoder) BeginList() *Encoder {
	e.w.WriteByte('(')
	return e
}

// EndList writes a closing parenthesis.
func (e *Encoder) EndList() *Encoder {
	e.w.WriteByte(')')
	return e
}

// List writes a parenthesized list of n items, calling f once per item
// with its index and inserting the separating space itself.
func (e *Encoder) List(n int, f func(i int)) *Encoder {
	e.BeginList()
	for i := 0; i < n; i++ {
		if i > 0 {
			e.SP()
		}
		f(i)
	}
	return e.EndList()
}

type literalWriteCloser struct {
	w       *bufio.Writer
	size    int64
	written int64
}

func (lw *literalWriteCloser) Write(p []byte) (int, error) {
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}

func (lw *literalWriteCloser) Close() error {
	if lw.written != lw.size {
		return fmt.Errorf("imapwire: literal writer closed after writing %v of %v bytes", lw.written, lw.size)
	}
	return lw.w.Flush()
}

// Literal writes a literal header and returns a writer for its bytes. If
// lit is non-nil and reports a non-negative size via Size, that size is
// used instead of the caller's size argument (used when streaming an
// already-opened imap.LiteralReader without first measuring it).
func (e *Encoder) Literal(size int64, lit ...imap.LiteralReader) io.WriteCloser {
	if len(lit) > 0 && lit[0] != nil {
		size = lit[0].Size()
	}

	e.w.WriteByte('{')
	e.w.WriteString(strconv.FormatInt(size, 10))
	e.w.WriteByte('}')
	e.w.WriteString("\r\n")

	return &literalWriteCloser{w: e.w, size: size}
}
