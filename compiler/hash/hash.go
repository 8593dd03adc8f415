// Package hash computes the content hash recorded in compiled modules.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// HashVersion prefixes the hashed bytes. Bumping it invalidates every
// recorded source hash.
const HashVersion byte = 1

// Normalize returns src with CRLF and lone CR line endings converted to LF
// and trailing spaces and tabs removed from every line. Edits that only
// touch line endings or trailing blanks therefore keep the same hash.
func Normalize(src []byte) []byte {
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	src = bytes.ReplaceAll(src, []byte("\r"), []byte("\n"))
	lines := bytes.Split(src, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimRight(line, " \t")
	}
	return bytes.Join(lines, []byte("\n"))
}

// Sum computes the SHA-256 digest of the normalized source.
func Sum(src []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{HashVersion})
	h.Write(Normalize(src))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Source returns the lowercase hex digest of the normalized source.
func Source(src string) string {
	sum := Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}
