package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var lengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)\s*$`)

// ParseLengthInches converts a CSS length ("1cm", "12mm", "0.5in", "36pt",
// "48px") to inches. A bare number is read as inches.
func ParseLengthInches(value string) (float64, error) {
	matches := lengthPattern.FindStringSubmatch(value)
	if len(matches) != 3 {
		return 0, fmt.Errorf("invalid length %q", value)
	}

	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", value, err)
	}

	switch unit := strings.ToLower(matches[2]); unit {
	case "", "in":
		return amount, nil
	case "cm":
		return amount / 2.54, nil
	case "mm":
		return amount / 25.4, nil
	case "pt":
		return amount / 72.0, nil
	case "px":
		return amount / 96.0, nil
	default:
		return 0, fmt.Errorf("unsupported length unit %q", unit)
	}
}
