package drapto

import (
	"fmt"
	"strconv"
	"strings"
)

const maxCRF = 63

// ParseCRF parses a --crf value into SD, HD, and UHD quality settings.
// A single value ("27") applies to all three buckets; a comma-separated
// triple ("25,27,29") sets SD, HD, and UHD independently. Each value
// must be an integer in [0, maxCRF].
func ParseCRF(s string) (sd, hd, uhd uint8, err error) {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}

	switch len(parts) {
	case 1:
		v, err := parseCRFValue(parts[0])
		if err != nil {
			return 0, 0, 0, err
		}
		return v, v, v, nil
	case 3:
		sd, err := parseCRFValue(parts[0])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid SD value: %w", err)
		}
		hd, err := parseCRFValue(parts[1])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid HD value: %w", err)
		}
		uhd, err := parseCRFValue(parts[2])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid UHD value: %w", err)
		}
		return sd, hd, uhd, nil
	default:
		return 0, 0, 0, fmt.Errorf("crf must be a single value or SD,HD,UHD triple, got %d values", len(parts))
	}
}

func parseCRFValue(s string) (uint8, error) {
	if s == "" {
		return 0, fmt.Errorf("empty CRF value")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < 0 || n > maxCRF {
		return 0, fmt.Errorf("%d is out of range [0, %d]", n, maxCRF)
	}
	return uint8(n), nil
}
