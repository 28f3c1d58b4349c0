package enforce

import (
	"strconv"
	"strings"
)

// CompareVersions orders two dotted version strings numerically, returning
// -1 when a is older than b, 0 when they are equal, and 1 when a is newer.
//
// Segments are compared as integers position by position. A version with
// fewer segments is padded with zeros, so "13.2" equals "13.2.0". A
// segment that does not parse as an integer counts as zero in its position
// rather than being dropped, which keeps later segments aligned.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		av := segmentValue(as, i)
		bv := segmentValue(bs, i)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	}
	return 0
}

func segmentValue(segments []string, i int) int {
	if i >= len(segments) {
		return 0
	}
	v, err := strconv.Atoi(segments[i])
	if err != nil {
		return 0
	}
	return v
}
