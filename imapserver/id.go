package imapserver

import (
	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
)

// idFieldNames lists the IDData struct fields in the order they are
// sent on the wire, RFC 2971 Section 3.
var idFieldNames = [...]string{
	"name", "version", "os", "os-version", "vendor",
	"support-url", "address", "date", "command", "arguments", "environment",
}

func idFieldPtr(data *imap.IDData, name string) *string {
	switch name {
	case "name":
		return &data.Name
	case "version":
		return &data.Version
	case "os":
		return &data.OS
	case "os-version":
		return &data.OSVersion
	case "vendor":
		return &data.Vendor
	case "support-url":
		return &data.SupportURL
	case "address":
		return &data.Address
	case "date":
		return &data.Date
	case "command":
		return &data.Command
	case "arguments":
		return &data.Arguments
	case "environment":
		return &data.Environment
	}
	return nil
}

// handleID handles the ID command, RFC 2971.
func (c *Conn) handleID(dec *imapwire.Decoder) error {
	if !dec.ExpectSP() {
		return dec.Err()
	}

	data, err := readIDParams(dec)
	if err != nil {
		return err
	}
	if !dec.ExpectCRLF() {
		return dec.Err()
	}

	c.mutex.Lock()
	c.clientID = data
	c.mutex.Unlock()

	enc := newResponseEncoder(c)
	defer enc.end()
	enc.Atom("*").SP().Atom("ID").SP()
	writeIDParams(enc.Encoder, c.server.options.IDData())
	return enc.CRLF()
}

// readIDParams reads an id-params-list: either NIL or a parenthesized list
// of string/nstring pairs.
func readIDParams(dec *imapwire.Decoder) (*imap.IDData, error) {
	var atom string
	if dec.Atom(&atom) {
		if atom != "NIL" {
			return nil, newClientBugError("in ID command: expected NIL or a parameter list")
		}
		return nil, nil
	}

	var data imap.IDData
	isNil := true
	ok, err := dec.List(func() error {
		isNil = false
		var key, value string
		if !dec.String(&key) || !dec.Expect(key != "", "id-param key") || !dec.ExpectSP() {
			return dec.Err()
		}
		if !dec.String(&value) {
			var a string
			if !dec.Atom(&a) || a != "NIL" {
				return newClientBugError("in ID param value: expected a string or NIL")
			}
		}
		if ptr := idFieldPtr(&data, key); ptr != nil {
			*ptr = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newClientBugError("in ID command: expected NIL or a parameter list")
	}
	if isNil {
		return nil, nil
	}
	return &data, nil
}

// writeIDParams writes data as an id-params-list, or NIL if data is nil.
func writeIDParams(enc *imapwire.Encoder, data *imap.IDData) {
	if data == nil {
		enc.NIL()
		return
	}

	enc.Special('(')
	first := true
	for _, name := range idFieldNames {
		value := *idFieldPtr(data, name)
		if value == "" {
			continue
		}
		if !first {
			enc.SP()
		}
		first = false
		enc.Quoted(name).SP().Quoted(value)
	}
	enc.Special(')')
}
