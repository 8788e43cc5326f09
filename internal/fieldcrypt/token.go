package fieldcrypt

import (
	"encoding/hex"
	"strings"
)

const (
	saltSize = 32
	ivSize   = 16
	tagSize  = 16
	keySize  = 32

	separator = ":"
)

// EmptyMarker is the stored representation of an empty or whitespace-only value.
// It is never passed through the cipher and decrypts to "", so an explicitly empty
// field stays distinguishable from one that was never stored.
const EmptyMarker = "[EMPTY]"

// token is the parsed form of salt:iv:tag:ciphertext.
type token struct {
	salt       []byte
	iv         []byte
	tag        []byte
	ciphertext []byte
}

func (t token) String() string {
	return strings.Join([]string{
		hex.EncodeToString(t.salt),
		hex.EncodeToString(t.iv),
		hex.EncodeToString(t.tag),
		hex.EncodeToString(t.ciphertext),
	}, separator)
}

// parseToken decodes and length-checks every component.
func parseToken(s string) (token, failureReason) {
	parts := strings.Split(s, separator)
	if len(parts) != 4 {
		return token{}, reasonMalformed
	}

	decoded := make([][]byte, 4)
	for i, p := range parts {
		if p == "" {
			return token{}, reasonMalformed
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return token{}, reasonMalformed
		}
		decoded[i] = b
	}

	t := token{salt: decoded[0], iv: decoded[1], tag: decoded[2], ciphertext: decoded[3]}
	if len(t.salt) != saltSize || len(t.iv) != ivSize || len(t.tag) != tagSize {
		return token{}, reasonLength
	}
	return t, ""
}

// IsEncryptedFormat reports whether value looks like a token: four non-empty hex
// segments. It is a structural check only and says nothing about authenticity.
func IsEncryptedFormat(value string) bool {
	parts := strings.Split(value, separator)
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || !isHex(p) {
			return false
		}
	}
	return true
}

// hasTokenShape reports whether value splits into exactly four colon segments.
// Such a value is handled as a token even when a segment is damaged, so corruption
// is reported instead of being mistaken for plaintext.
func hasTokenShape(value string) bool {
	return strings.Count(value, separator) == 3
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
