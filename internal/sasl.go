package internal

import "encoding/base64"

// EncodeSASL encodes a SASL challenge or response for the wire, RFC 9051
// Section 4.3.
func EncodeSASL(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeSASL decodes a base64-encoded SASL challenge or response.
func DecodeSASL(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
