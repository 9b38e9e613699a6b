// Package fingerprint derives the content hash used to decide whether the
// display must be redrawn.
package fingerprint

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Of returns the fingerprint of b as 16 lowercase hex digits.
func Of(b []byte) string {
	s := strconv.FormatUint(xxhash.Sum64(b), 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}

// Changed reports whether cur differs from prev. An empty prev (nothing
// shown yet) always counts as a change.
func Changed(prev, cur string) bool {
	return prev != cur
}
