package ingest

import (
	"strconv"
	"strings"
)

// DefaultQRPrefix is the namespace for location label identifiers
// (LOC000001, LOC000002, ...).
const DefaultQRPrefix = "LOC"

const qrSuffixDigits = 6

// maxQRSuffix scans all persisted QR codes and returns the highest numeric
// suffix in the given prefix namespace. Numbering resumes from max+1 on
// every run, so repeated partial runs never collide.
func maxQRSuffix(codes []string, prefix string) int {
	max := 0
	for _, c := range codes {
		if !strings.HasPrefix(c, prefix) {
			continue
		}
		n, err := strconv.Atoi(c[len(prefix):])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}
