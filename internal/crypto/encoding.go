package crypto

import "encoding/base64"

// B64Encode encodes data as standard base64 with padding, the wire
// representation required for every binary field in §6.1/§6.2.
func B64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// B64Decode decodes a standard, padded base64 string.
func B64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
