// Package idgen generates the short random identifiers used for ChangeSets
// and routing entries.
package idgen

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// idLength is the number of base36 characters after the prefix. Eight chars
// give ~41 bits, which keeps collisions out of reach for the row counts a
// single deployment sees.
const idLength = 8

// Prefixes for the identifier namespaces.
const (
	PrefixChangeSet    = "cs"
	PrefixRoutingEntry = "re"
)

// encodeBase36 converts a byte slice to a base36 string of the given length,
// zero-padded on the left and truncated to the least significant digits.
func encodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var b strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		b.WriteByte(chars[i])
	}

	str := b.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// New returns a fresh identifier of the form "<prefix>-<base36>".
func New(prefix string) string {
	buf := make([]byte, 8)
	// crypto/rand.Read never fails on supported platforms; a short read
	// would still leave the buffer usable as an ID source.
	_, _ = rand.Read(buf)
	return prefix + "-" + encodeBase36(buf, idLength)
}
