package utils

import (
	"strconv"
	"unicode/utf16"
)

// Fingerprint derives a short, stable identifier for an arbitrary URL,
// suitable as a document key. It must stay bit-identical to the browser
// client's hash: iterate UTF-16 code units accumulating
// hash = hash<<5 - hash + code under 32-bit two's-complement wraparound,
// then base36-encode the absolute value and append the code-unit length.
//
// The length suffix disambiguates the most likely collision class (same
// 32-bit hash, different length). Collisions remain theoretically
// possible; that is an accepted property of the key scheme, not a bug.
func Fingerprint(url string) string {
	units := utf16.Encode([]rune(url))

	var hash int32
	for _, code := range units {
		hash = hash<<5 - hash + int32(code)
	}

	// Widen before negating: -MinInt32 overflows int32.
	v := int64(hash)
	if v < 0 {
		v = -v
	}

	return "url_" + strconv.FormatInt(v, 36) + "_" + strconv.Itoa(len(units))
}
