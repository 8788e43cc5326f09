package fieldcrypt

import "strings"

const maskRune = "*"

// MaskForDisplay replaces all but the last visibleSuffix runes with '*'.
// A value no longer than visibleSuffix is masked completely, as is any value when
// visibleSuffix is zero or negative.
func MaskForDisplay(plaintext string, visibleSuffix int) string {
	runes := []rune(plaintext)
	n := len(runes)
	if visibleSuffix <= 0 || n <= visibleSuffix {
		return strings.Repeat(maskRune, n)
	}
	return strings.Repeat(maskRune, n-visibleSuffix) + string(runes[n-visibleSuffix:])
}
