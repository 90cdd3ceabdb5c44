package imapserver

import (
	"strings"
	"time"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal"
	"github.com/coldwire/imapd/internal/imapwire"
)

// handleSearch handles the SEARCH command, RFC 9051 Section 6.4.4.
func (c *Conn) handleSearch(tag string, dec *imapwire.Decoder, kind NumKind) error {
	var options imap.SearchOptions
	for {
		if !dec.ExpectSP() {
			return dec.Err()
		}

		var tok string
		if dec.PeekNumSetChar() || !dec.Atom(&tok) {
			// A sequence-set or a parenthesized group starts the
			// search-key sequence.
			criteria, err := readSearchKey(dec, kind)
			if err != nil {
				return err
			}
			if err := readRemainingSearchKeys(dec, criteria, kind); err != nil {
				return err
			}
			return c.search(tag, kind, criteria, &options)
		}
		switch strings.ToUpper(tok) {
		case "CHARSET":
			var charset string
			if !dec.ExpectSP() || !dec.ExpectAString(&charset) {
				return dec.Err()
			}
			if !strings.EqualFold(charset, "UTF-8") && !strings.EqualFold(charset, "US-ASCII") {
				return &imap.Error{
					Type: imap.StatusResponseTypeNo,
					Code: imap.ResponseCodeBadCharset,
					Text: "unsupported charset",
				}
			}
		case "RETURN":
			if !dec.ExpectSP() {
				return dec.Err()
			}
			if err := readSearchReturnOpts(dec, &options); err != nil {
				return err
			}
		default:
			// Not a recognized prefix keyword: this atom is the keyword
			// of the first search-key, handed to readSearchKeyFrom.
			criteria, err := readSearchKeyFrom(dec, tok, kind)
			if err != nil {
				return err
			}
			if err := readRemainingSearchKeys(dec, criteria, kind); err != nil {
				return err
			}
			return c.search(tag, kind, criteria, &options)
		}
	}
}

// readSearchReturnOpts reads a parenthesized list of search-return-opt.
func readSearchReturnOpts(dec *imapwire.Decoder, options *imap.SearchOptions) error {
	return dec.ExpectList(func() error {
		var name string
		if !dec.ExpectAtom(&name) {
			return dec.Err()
		}
		switch strings.ToUpper(name) {
		case "MIN":
			options.ReturnMin = true
		case "MAX":
			options.ReturnMax = true
		case "ALL":
			options.ReturnAll = true
		case "COUNT":
			options.ReturnCount = true
		case "SAVE":
			options.ReturnSave = true
		default:
			return newClientBugError("unknown search-return-opt: " + name)
		}
		return nil
	})
}

// readRemainingSearchKeys reads zero or more additional SP search-key and
// ANDs them into criteria.
func readRemainingSearchKeys(dec *imapwire.Decoder, criteria *imap.SearchCriteria, kind NumKind) error {
	for dec.SP() {
		k, err := readSearchKey(dec, kind)
		if err != nil {
			return err
		}
		criteria.And(k)
	}
	if !dec.ExpectCRLF() {
		return dec.Err()
	}
	return nil
}

// readSearchKey reads a single search-key.
func readSearchKey(dec *imapwire.Decoder, kind NumKind) (*imap.SearchCriteria, error) {
	if dec.Special('(') {
		var criteria imap.SearchCriteria
		for {
			k, err := readSearchKey(dec, kind)
			if err != nil {
				return nil, err
			}
			criteria.And(k)
			if dec.Special(')') {
				break
			}
			if !dec.ExpectSP() {
				return nil, dec.Err()
			}
		}
		return &criteria, nil
	}

	if dec.PeekNumSetChar() {
		var numSet imap.NumSet
		if !dec.ExpectNumSet(kind.wire(), &numSet) {
			return nil, dec.Err()
		}
		return numSetCriteria(numSet, kind), nil
	}

	var name string
	if !dec.ExpectAtom(&name) {
		return nil, dec.Err()
	}
	return readSearchKeyFrom(dec, name, kind)
}

// numSetCriteria wraps numSet as the SeqNum or UID field of a criteria,
// depending on kind.
func numSetCriteria(numSet imap.NumSet, kind NumKind) *imap.SearchCriteria {
	var criteria imap.SearchCriteria
	if kind == NumKindUID {
		criteria.UID = []imap.UIDSet{numSet.(imap.UIDSet)}
	} else {
		criteria.SeqNum = []imap.SeqSet{numSet.(imap.SeqSet)}
	}
	return &criteria
}

// readSearchKeyFrom builds a search-key whose keyword atom has already
// been read as name.
func readSearchKeyFrom(dec *imapwire.Decoder, name string, kind NumKind) (*imap.SearchCriteria, error) {
	var criteria imap.SearchCriteria

	switch strings.ToUpper(name) {
	case "ALL":
	case "ANSWERED":
		criteria.Flag = append(criteria.Flag, imap.FlagAnswered)
	case "UNANSWERED":
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagAnswered)
	case "DELETED":
		criteria.Flag = append(criteria.Flag, imap.FlagDeleted)
	case "UNDELETED":
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagDeleted)
	case "DRAFT":
		criteria.Flag = append(criteria.Flag, imap.FlagDraft)
	case "UNDRAFT":
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagDraft)
	case "FLAGGED":
		criteria.Flag = append(criteria.Flag, imap.FlagFlagged)
	case "UNFLAGGED":
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagFlagged)
	case "SEEN":
		criteria.Flag = append(criteria.Flag, imap.FlagSeen)
	case "UNSEEN":
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	case "NEW":
		criteria.Flag = append(criteria.Flag, imap.FlagRecent)
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	case "OLD":
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagRecent)
	case "RECENT":
		criteria.Flag = append(criteria.Flag, imap.FlagRecent)
	case "KEYWORD":
		var flag string
		if !dec.ExpectSP() || !dec.ExpectAtom(&flag) {
			return nil, dec.Err()
		}
		criteria.Flag = append(criteria.Flag, imap.Flag(flag))
	case "UNKEYWORD":
		var flag string
		if !dec.ExpectSP() || !dec.ExpectAtom(&flag) {
			return nil, dec.Err()
		}
		criteria.NotFlag = append(criteria.NotFlag, imap.Flag(flag))
	case "BCC":
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Bcc", Value: s})
	case "CC":
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Cc", Value: s})
	case "FROM":
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: s})
	case "TO":
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "To", Value: s})
	case "SUBJECT":
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: s})
	case "HEADER":
		var field string
		if !dec.ExpectSP() || !dec.ExpectAString(&field) {
			return nil, dec.Err()
		}
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: field, Value: s})
	case "BODY":
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Body = append(criteria.Body, s)
	case "TEXT":
		s, err := readSearchAString(dec)
		if err != nil {
			return nil, err
		}
		criteria.Text = append(criteria.Text, s)
	case "LARGER":
		n, err := readSearchNumber(dec)
		if err != nil {
			return nil, err
		}
		criteria.Larger = n
	case "SMALLER":
		n, err := readSearchNumber(dec)
		if err != nil {
			return nil, err
		}
		criteria.Smaller = n
	case "BEFORE":
		t, err := readSearchDate(dec)
		if err != nil {
			return nil, err
		}
		criteria.Before = t
	case "SINCE":
		t, err := readSearchDate(dec)
		if err != nil {
			return nil, err
		}
		criteria.Since = t
	case "SENTBEFORE":
		t, err := readSearchDate(dec)
		if err != nil {
			return nil, err
		}
		criteria.SentBefore = t
	case "SENTSINCE":
		t, err := readSearchDate(dec)
		if err != nil {
			return nil, err
		}
		criteria.SentSince = t
	case "SENTON":
		t, err := readSearchDate(dec)
		if err != nil {
			return nil, err
		}
		criteria.SentSince = t
		criteria.SentBefore = t.AddDate(0, 0, 1)
	case "ON":
		t, err := readSearchDate(dec)
		if err != nil {
			return nil, err
		}
		criteria.Since = t
		criteria.Before = t.AddDate(0, 0, 1)
	case "NOT":
		if !dec.ExpectSP() {
			return nil, dec.Err()
		}
		k, err := readSearchKey(dec, kind)
		if err != nil {
			return nil, err
		}
		criteria.Not = append(criteria.Not, *k)
	case "OR":
		if !dec.ExpectSP() {
			return nil, dec.Err()
		}
		k1, err := readSearchKey(dec, kind)
		if err != nil {
			return nil, err
		}
		if !dec.ExpectSP() {
			return nil, dec.Err()
		}
		k2, err := readSearchKey(dec, kind)
		if err != nil {
			return nil, err
		}
		criteria.Or = append(criteria.Or, [2]imap.SearchCriteria{*k1, *k2})
	case "UID":
		var numSet imap.NumSet
		if !dec.ExpectSP() || !dec.ExpectNumSet(imapwire.NumKindUID, &numSet) {
			return nil, dec.Err()
		}
		criteria.UID = append(criteria.UID, numSet.(imap.UIDSet))
	default:
		return nil, newClientBugError("unknown search key: " + name)
	}

	return &criteria, nil
}

func readSearchAString(dec *imapwire.Decoder) (string, error) {
	var s string
	if !dec.ExpectSP() || !dec.ExpectAString(&s) {
		return "", dec.Err()
	}
	return s, nil
}

func readSearchNumber(dec *imapwire.Decoder) (int64, error) {
	var n uint32
	if !dec.ExpectSP() || !dec.ExpectNumber(&n) {
		return 0, dec.Err()
	}
	return int64(n), nil
}

func readSearchDate(dec *imapwire.Decoder) (time.Time, error) {
	if !dec.ExpectSP() {
		return time.Time{}, dec.Err()
	}
	return internal.DecodeSearchDate(dec)
}

// search runs criteria against the selected mailbox and writes the
// SEARCH or ESEARCH response.
func (c *Conn) search(tag string, kind NumKind, criteria *imap.SearchCriteria, options *imap.SearchOptions) error {
	if err := c.checkState(imap.ConnStateSelected); err != nil {
		return err
	}

	data, err := c.session.Search(kind, criteria, options)
	if err != nil {
		return err
	}

	enc := newResponseEncoder(c)
	defer enc.end()

	if !options.ReturnMin && !options.ReturnMax && !options.ReturnAll && !options.ReturnCount {
		enc.Atom("*").SP().Atom("SEARCH")
		if kind == NumKindUID {
			for _, uid := range data.AllUIDs() {
				enc.SP().UID(uid)
			}
		} else {
			for _, n := range data.AllSeqNums() {
				enc.SP().Number(n)
			}
		}
		return enc.CRLF()
	}

	enc.Atom("*").SP().Atom("ESEARCH").SP().Special('(').Atom("TAG").SP().Quoted(tag).Special(')')
	if data.UID {
		enc.SP().Atom("UID")
	}
	if options.ReturnMin {
		enc.SP().Atom("MIN").SP().Number(data.Min)
	}
	if options.ReturnMax {
		enc.SP().Atom("MAX").SP().Number(data.Max)
	}
	if options.ReturnAll && data.All != nil {
		enc.SP().Atom("ALL").SP().Atom(data.All.String())
	}
	if options.ReturnCount {
		enc.SP().Atom("COUNT").SP().Number(data.Count)
	}
	return enc.CRLF()
}
