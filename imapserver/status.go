package imapserver

import (
	"strings"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// handleStatus handles the STATUS command, RFC 9051 Section 6.3.10.
func (c *Conn) handleStatus(dec *imapwire.Decoder) error {
	var mailbox string
	if !dec.ExpectSP() || !dec.ExpectMailbox(&mailbox) || !dec.ExpectSP() {
		return dec.Err()
	}

	var options imap.StatusOptions
	recent := false
	err := dec.ExpectList(func() error {
		isRecent, err := readStatusItem(dec, &options)
		if err != nil {
			return err
		} else if isRecent {
			recent = true
		}
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

	data, err := c.session.Status(mailbox, &options)
	if err != nil {
		return err
	}

	return c.writeStatus(data, &options, recent)
}

// writeStatus writes a STATUS response.
func (c *Conn) writeStatus(data *imap.StatusData, options *imap.StatusOptions, recent bool) error {
	enc := newResponseEncoder(c)
	defer enc.end()

	enc.Atom("*").SP().Atom("STATUS").SP().Mailbox(data.Mailbox).SP()

	var items []func()
	if options.NumMessages {
		items = append(items, func() { enc.Atom("MESSAGES").SP().Number(*data.NumMessages) })
	}
	if options.UIDNext {
		items = append(items, func() { enc.Atom("UIDNEXT").SP().Number(uint32(data.UIDNext)) })
	}
	if options.UIDValidity {
		items = append(items, func() { enc.Atom("UIDVALIDITY").SP().Number(data.UIDValidity) })
	}
	if options.NumUnseen {
		items = append(items, func() { enc.Atom("UNSEEN").SP().Number(*data.NumUnseen) })
	}
	if options.NumDeleted {
		items = append(items, func() { enc.Atom("DELETED").SP().Number(*data.NumDeleted) })
	}
	if options.Size {
		items = append(items, func() { enc.Atom("SIZE").SP().Number64(*data.Size) })
	}
	if options.AppendLimit {
		items = append(items, func() {
			enc.Atom("APPENDLIMIT").SP()
			if data.AppendLimit != nil {
				enc.Number(*data.AppendLimit)
			} else {
				enc.NIL()
			}
		})
	}
	if options.DeletedStorage {
		items = append(items, func() { enc.Atom("DELETED-STORAGE").SP().Number64(*data.DeletedStorage) })
	}
	if recent {
		items = append(items, func() { enc.Atom("RECENT").SP().Number(0) })
	}

	enc.List(len(items), func(i int) { items[i]() })

	return enc.CRLF()
}

// readStatusItem reads a single STATUS data item name and updates options.
func readStatusItem(dec *imapwire.Decoder, options *imap.StatusOptions) (isRecent bool, err error) {
	var name string
	if !dec.ExpectAtom(&name) {
		return false, dec.Err()
	}
	switch strings.ToUpper(name) {
	case "MESSAGES":
		options.NumMessages = true
	case "UIDNEXT":
		options.UIDNext = true
	case "UIDVALIDITY":
		options.UIDValidity = true
	case "UNSEEN":
		options.NumUnseen = true
	case "DELETED":
		options.NumDeleted = true
	case "SIZE":
		options.Size = true
	case "APPENDLIMIT":
		options.AppendLimit = true
	case "DELETED-STORAGE":
		options.DeletedStorage = true
	case "RECENT":
		isRecent = true
	default:
		return false, &imap.Error{
			Type: imap.StatusResponseTypeBad,
			Text: "unknown STATUS data item",
		}
	}
	return isRecent, nil
}
