package redact

import (
	"encoding/hex"
	"strings"
)

// String masks the middle half of s, leaving its first and last quarters
// visible. Values shorter than four characters are masked entirely.
func String(s string) string {
	r := []rune(s)
	n := len(r)
	if n < 4 {
		return strings.Repeat("*", n)
	}

	keep := n / 4

	return string(r[:keep]) + strings.Repeat("*", n-2*keep) + string(r[n-keep:])
}

// Bytes masks b the way String does, over its hex encoding.
func Bytes(b []byte) string {
	return String(hex.EncodeToString(b))
}
