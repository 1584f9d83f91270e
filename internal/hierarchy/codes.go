package hierarchy

import (
	"strings"
)

// Tier identifies a level of the containment hierarchy.
type Tier string

const (
	TierWarehouse Tier = "warehouse"
	TierArea      Tier = "area"
	TierLocation  Tier = "location"
	TierBin       Tier = "bin"
)

// Segments returns the hyphen-segment count a code at this tier carries:
// WAREHOUSE, WAREHOUSE-AREA, WAREHOUSE-AREA-LOCATION, and so on.
func (t Tier) Segments() int {
	switch t {
	case TierWarehouse:
		return 1
	case TierArea:
		return 2
	case TierLocation:
		return 3
	case TierBin:
		return 4
	}
	return 0
}

// MaxCodeLen returns the total length bound for codes at this tier.
func (t Tier) MaxCodeLen() int {
	switch t {
	case TierWarehouse:
		return 20
	case TierArea, TierLocation:
		return 50
	case TierBin:
		return 100
	}
	return 0
}

const minCodeLen = 2

// NormalizeCode strips whitespace, uppercases, and verifies the tier's code
// structure: charset [A-Z0-9_-], exact hyphen-segment count, length bounds.
func NormalizeCode(tier Tier, raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))

	if len(code) < minCodeLen || len(code) > tier.MaxCodeLen() {
		return "", &InvalidCodeFormat{
			Tier:   tier,
			Code:   code,
			Reason: "length out of bounds",
		}
	}

	for _, r := range code {
		if !isCodeRune(r) {
			return "", &InvalidCodeFormat{
				Tier:   tier,
				Code:   code,
				Reason: "contains characters outside [A-Z0-9_-]",
			}
		}
	}

	segments := strings.Split(code, "-")
	if len(segments) != tier.Segments() {
		return "", &InvalidCodeFormat{
			Tier:             tier,
			ExpectedSegments: tier.Segments(),
			GotSegments:      len(segments),
			Code:             code,
		}
	}
	for _, seg := range segments {
		if seg == "" {
			return "", &InvalidCodeFormat{
				Tier:   tier,
				Code:   code,
				Reason: "empty segment",
			}
		}
	}

	return code, nil
}

func isCodeRune(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// CodeSegment sanitizes a free-text fragment into a single code segment:
// non-alphanumerics stripped, uppercased, truncated to maxLen.
func CodeSegment(name string, maxLen int) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	seg := b.String()
	if maxLen > 0 && len(seg) > maxLen {
		seg = seg[:maxLen]
	}
	return seg
}
