package internal

import (
	"time"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// DateTimeLayout is the date-time format used by APPEND and the INTERNALDATE
// FETCH item, RFC 9051 Section 4.3.
const DateTimeLayout = "02-Jan-2006 15:04:05 -0700"

// DecodeDateTime reads an optional quoted date-time. If no string is
// present, it returns the zero time without error.
func DecodeDateTime(dec *imapwire.Decoder) (time.Time, error) {
	var s string
	if !dec.String(&s) {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return time.Time{}, &imap.Error{
			Type: imap.StatusResponseTypeBad,
			Text: "malformed date-time",
		}
	}
	return t, nil
}

// DateLayout is the date-only format used by SEARCH date keys, RFC 9051
// Section 6.4.4.
const DateLayout = "2-Jan-2006"

// DecodeSearchDate reads a date astring, e.g. "1-Feb-1994" or 1-Feb-1994.
func DecodeSearchDate(dec *imapwire.Decoder) (time.Time, error) {
	var s string
	if !dec.ExpectAString(&s) {
		return time.Time{}, dec.Err()
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &imap.Error{
			Type: imap.StatusResponseTypeBad,
			Text: "malformed date",
		}
	}
	return t, nil
}
