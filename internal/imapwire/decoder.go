package imapwire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapnum"
	"github.com/coldwire/imapd/internal/utf7"
)

// DecoderExpectError is returned when a required production is missing from
// the input. The caller turns it into a tagged BAD response carrying
// Message.
type DecoderExpectError struct {
	Message string
	Err     error
}

func (e *DecoderExpectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("expected %v: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("expected %v", e.Message)
}

func (e *DecoderExpectError) Unwrap() error { return e.Err }

// Decoder reads IMAP command or response syntax from a buffered reader.
//
// Most read methods come in two flavors: a lowercase-receiver-style
// optional form (e.g. Atom) which returns false without setting an error
// when the expected production isn't present, and an Expect-prefixed form
// which records a *DecoderExpectError on failure. Callers chain several
// Expect calls with || and check dec.Err() once at the end.
type Decoder struct {
	r    *bufio.Reader
	side ConnSide
	err  error

	// CheckBufferedLiteralFunc is called before a command literal is
	// accepted. It lets the caller reject oversized literals or enforce
	// TLS/auth preconditions before committing to read the bytes.
	CheckBufferedLiteralFunc func(size int64, nonSync bool) error
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r *bufio.Reader, side ConnSide) *Decoder {
	return &Decoder{r: r, side: side}
}

// Err returns the first error recorded by an Expect call, if any.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) expectErr(name string) bool {
	if d.err == nil {
		d.err = &DecoderExpectError{Message: name}
	}
	return false
}

func (d *Decoder) expectErrWrap(name string, err error) bool {
	if d.err == nil {
		d.err = &DecoderExpectError{Message: name, Err: err}
	}
	return false
}

// Expect records an error naming what was expected if cond is false, and
// returns cond unchanged. It's used to fold ad-hoc conditions, including
// the result of Func, into the usual if-chain idiom.
func (d *Decoder) Expect(cond bool, name string) bool {
	if !cond {
		return d.expectErr(name)
	}
	return true
}

// EOF reports whether the input has been exhausted.
func (d *Decoder) EOF() bool {
	_, err := d.r.Peek(1)
	return err != nil
}

func (d *Decoder) peekByte() (byte, bool) {
	b, err := d.r.Peek(1)
	if err != nil {
		return 0, false
	}
	return b[0], true
}

// PeekNumSetChar reports whether the next unread byte can only begin a
// sequence-set (a digit or '*'), never a search-key atom. Callers use this
// to disambiguate a bare sequence-set from a keyword in the SEARCH
// search-key grammar without consuming input.
func (d *Decoder) PeekNumSetChar() bool {
	b, ok := d.peekByte()
	if !ok {
		return false
	}
	return b == '*' || (b >= '0' && b <= '9')
}

// SP reads a single space character, if present.
func (d *Decoder) SP() bool {
	b, ok := d.peekByte()
	if !ok || b != ' ' {
		return false
	}
	d.r.ReadByte()
	return true
}

// ExpectSP requires a single space character.
func (d *Decoder) ExpectSP() bool {
	if !d.SP() {
		return d.expectErr("space")
	}
	return true
}

// CRLF reads a CRLF, if present.
func (d *Decoder) CRLF() bool {
	b, err := d.r.Peek(2)
	if err != nil || len(b) < 2 || b[0] != '\r' || b[1] != '\n' {
		return false
	}
	d.r.Discard(2)
	return true
}

// ExpectCRLF requires a CRLF.
func (d *Decoder) ExpectCRLF() bool {
	if !d.CRLF() {
		return d.expectErr("CRLF")
	}
	return true
}

// Special reads a single special character, if present.
func (d *Decoder) Special(b byte) bool {
	got, ok := d.peekByte()
	if !ok || got != b {
		return false
	}
	d.r.ReadByte()
	return true
}

// ExpectSpecial requires a single special character.
func (d *Decoder) ExpectSpecial(b byte) bool {
	if !d.Special(b) {
		return d.expectErr(fmt.Sprintf("%q", string(b)))
	}
	return true
}

func isAtomChar(b byte) bool {
	if b <= 0x20 || b >= 0x7f {
		return false
	}
	switch b {
	case '(', ')', '{', '%', '*', '"', '\\', ']':
		return false
	}
	return true
}

// isListChar accepts the extra wildcard characters allowed in a LIST
// mailbox pattern: '%' and '*'.
func isListChar(b byte) bool {
	return isAtomChar(b) || b == '%' || b == '*'
}

// isMsgAttNameChar accepts the characters that make up a FETCH msg-att
// name, including the '.' used by BINARY.SIZE.
func isMsgAttNameChar(b byte) bool {
	return isAtomChar(b) || b == '.'
}

// Func reads characters accepted by accept into *ptr. It returns true if at
// least one byte was consumed.
func (d *Decoder) Func(ptr *string, accept func(byte) bool) bool {
	var sb strings.Builder
	for {
		b, ok := d.peekByte()
		if !ok || !accept(b) {
			break
		}
		d.r.ReadByte()
		sb.WriteByte(b)
	}
	if sb.Len() == 0 {
		return false
	}
	*ptr = sb.String()
	return true
}

// Atom reads an atom, if present.
func (d *Decoder) Atom(ptr *string) bool {
	return d.Func(ptr, isAtomChar)
}

// ExpectAtom requires an atom.
func (d *Decoder) ExpectAtom(ptr *string) bool {
	if !d.Atom(ptr) {
		return d.expectErr("atom")
	}
	return true
}

func (d *Decoder) quotedString(ptr *string) bool {
	if !d.Special('"') {
		return false
	}

	var sb strings.Builder
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			d.err = &DecoderExpectError{Message: "quoted string", Err: err}
			return false
		}
		switch b {
		case '"':
			*ptr = sb.String()
			return true
		case '\\':
			escaped, err := d.r.ReadByte()
			if err != nil {
				d.err = &DecoderExpectError{Message: "quoted string", Err: err}
				return false
			}
			sb.WriteByte(escaped)
		case '\r', '\n':
			d.err = &DecoderExpectError{Message: "quoted string"}
			return false
		default:
			sb.WriteByte(b)
		}
	}
}

func (d *Decoder) literalHeader() (size int64, nonSync bool, ok bool) {
	binary := d.Special('~')
	if !d.Special('{') {
		if binary {
			d.expectErr("literal")
		}
		return 0, false, false
	}

	var numStr strings.Builder
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			d.expectErrWrap("literal", err)
			return 0, false, false
		}
		if b == '+' {
			nonSync = true
			continue
		}
		if b == '}' {
			break
		}
		if b < '0' || b > '9' {
			d.expectErr("literal size")
			return 0, false, false
		}
		numStr.WriteByte(b)
	}

	n, err := strconv.ParseInt(numStr.String(), 10, 63)
	if err != nil {
		d.expectErrWrap("literal size", err)
		return 0, false, false
	}

	if !d.ExpectCRLF() {
		return 0, false, false
	}

	return n, nonSync, true
}

// literal reads a literal's bytes directly into memory. Used for short
// values, e.g. literal flag names; large payloads go through
// ExpectLiteralReader instead.
func (d *Decoder) literal(ptr *string) bool {
	size, nonSync, ok := d.literalHeader()
	if !ok {
		return false
	}
	if d.CheckBufferedLiteralFunc != nil {
		if err := d.CheckBufferedLiteralFunc(size, nonSync); err != nil {
			d.err = err
			return false
		}
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.expectErrWrap("literal", err)
		return false
	}
	*ptr = string(buf)
	return true
}

// String reads a quoted string or literal, if present. Bare atoms are not
// accepted; use AString for the combined grammar.
func (d *Decoder) String(ptr *string) bool {
	b, ok := d.peekByte()
	if !ok {
		return false
	}
	switch b {
	case '"':
		return d.quotedString(ptr)
	case '{', '~':
		return d.literal(ptr)
	default:
		return false
	}
}

// ExpectAString requires an astring: an atom, quoted string or literal.
func (d *Decoder) ExpectAString(ptr *string) bool {
	if d.Atom(ptr) {
		return true
	}
	if d.String(ptr) {
		return true
	}
	return d.expectErr("astring")
}

// ExpectText reads the free-form text of a status response until CRLF.
func (d *Decoder) ExpectText(ptr *string) bool {
	var sb strings.Builder
	for {
		b, ok := d.peekByte()
		if !ok || b == '\r' {
			break
		}
		d.r.ReadByte()
		sb.WriteByte(b)
	}
	*ptr = sb.String()
	return true
}

// ExpectMailbox reads a mailbox name, decoding it from modified UTF-7 and
// normalizing "INBOX" regardless of case.
func (d *Decoder) ExpectMailbox(ptr *string) bool {
	var raw string
	if !d.ExpectAString(&raw) {
		return false
	}
	if strings.EqualFold(raw, "INBOX") {
		*ptr = "INBOX"
		return true
	}
	name, err := utf7.Decode(raw)
	if err != nil {
		return d.expectErrWrap("mailbox name", err)
	}
	*ptr = name
	return true
}

// ExpectNumber reads an unsigned 32-bit number.
func (d *Decoder) ExpectNumber(ptr *uint32) bool {
	var s string
	if !d.Func(&s, func(b byte) bool { return b >= '0' && b <= '9' }) {
		return d.expectErr("number")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return d.expectErrWrap("number", err)
	}
	*ptr = uint32(n)
	return true
}

// ExpectNumber64 reads an unsigned 64-bit number.
func (d *Decoder) ExpectNumber64(ptr *uint64) bool {
	var s string
	if !d.Func(&s, func(b byte) bool { return b >= '0' && b <= '9' }) {
		return d.expectErr("number64")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return d.expectErrWrap("number64", err)
	}
	*ptr = n
	return true
}

// Number reads an unsigned 32-bit number, if present.
func (d *Decoder) Number(ptr *uint32) bool {
	var s string
	if !d.Func(&s, func(b byte) bool { return b >= '0' && b <= '9' }) {
		return false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return false
	}
	*ptr = uint32(n)
	return true
}

// ExpectLiteralReader reads a literal header and returns a reader over its
// bytes, without buffering the whole literal in memory.
func (d *Decoder) ExpectLiteralReader() (imap.LiteralReader, bool, error) {
	size, nonSync, ok := d.literalHeader()
	if !ok {
		return nil, false, d.err
	}
	if d.CheckBufferedLiteralFunc != nil {
		if err := d.CheckBufferedLiteralFunc(size, nonSync); err != nil {
			return nil, false, err
		}
	}
	return &literalReader{r: io.LimitReader(d.r, size), size: size}, nonSync, nil
}

type literalReader struct {
	r    io.Reader
	size int64
}

func (lr *literalReader) Read(p []byte) (int, error) { return lr.r.Read(p) }
func (lr *literalReader) Size() int64                { return lr.size }

// sequenceSetChar accepts the characters that make up a sequence-set:
// digits, '*', ':' and ','.
func sequenceSetChar(b byte) bool {
	return (b >= '0' && b <= '9') || b == '*' || b == ':' || b == ','
}

// ExpectNumSet reads a sequence-set, producing a SeqSet or a UIDSet
// depending on kind.
func (d *Decoder) ExpectNumSet(kind NumKind, ptr *imap.NumSet) bool {
	var raw string
	if !d.Func(&raw, sequenceSetChar) {
		return d.expectErr("sequence-set")
	}

	set, err := imapnum.Parse(raw)
	if err != nil {
		return d.expectErrWrap("sequence-set", err)
	}

	if kind == NumKindUID {
		var uidSet imap.UIDSet
		for _, r := range set {
			uidSet.AddRange(imap.UID(r.Start), imap.UID(r.Stop))
		}
		*ptr = uidSet
	} else {
		var seqSet imap.SeqSet
		for _, r := range set {
			seqSet.AddRange(r.Start, r.Stop)
		}
		*ptr = seqSet
	}
	return true
}

// ExpectUIDSet reads a sequence-set of UIDs.
func (d *Decoder) ExpectUIDSet(ptr *imap.UIDSet) bool {
	var num imap.NumSet
	if !d.ExpectNumSet(NumKindUID, &num) {
		return false
	}
	uidSet, ok := num.(imap.UIDSet)
	if !ok {
		return d.expectErr("UID set")
	}
	*ptr = uidSet
	return true
}

// List reads a parenthesized list, calling fn once per item, if a list is
// present. It returns false without error if the next character isn't '('.
func (d *Decoder) List(fn func() error) (bool, error) {
	if !d.Special('(') {
		return false, nil
	}

	first := true
	for {
		if d.Special(')') {
			return true, nil
		}
		if !first {
			if !d.ExpectSP() {
				return true, d.err
			}
		}
		if err := fn(); err != nil {
			return true, err
		}
		first = false
	}
}

// ExpectList requires a parenthesized list, calling fn once per item.
func (d *Decoder) ExpectList(fn func() error) error {
	ok, err := d.List(fn)
	if err != nil {
		return err
	}
	if !ok {
		d.expectErr("list")
		return d.err
	}
	return nil
}

// DiscardLine discards the remainder of the current line, including the
// terminating CRLF.
func (d *Decoder) DiscardLine() {
	for {
		b, err := d.r.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}
