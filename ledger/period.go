package ledger

import "fmt"

// =============================================================================
// PERIOD KEY - Identifies one ledger cycle
// =============================================================================

// PeriodKey is a year-month ("2025-10") or a year ("2025").
// Keys of the same PeriodType order lexicographically.
type PeriodKey string

// PeriodType distinguishes monthly from yearly periods.
type PeriodType string

const (
	PeriodMonthly PeriodType = "monthly"
	PeriodYearly  PeriodType = "yearly"
)

// ParsePeriodKey validates s and returns it as a PeriodKey. Only ASCII
// digits are accepted around the dash, so every valid key has one spelling.
func ParsePeriodKey(s string) (PeriodKey, error) {
	switch len(s) {
	case 4:
		if _, err := parseYear(s); err != nil {
			return "", err
		}
		return PeriodKey(s), nil
	case 7:
		if s[4] != '-' {
			return "", fmt.Errorf("invalid period %q: want YYYY-MM", s)
		}
		if _, err := parseYear(s[:4]); err != nil {
			return "", err
		}
		m, ok := digits(s[5:])
		if !ok || m < 1 || m > 12 {
			return "", fmt.Errorf("invalid period %q: month out of range", s)
		}
		return PeriodKey(s), nil
	default:
		return "", fmt.Errorf("invalid period %q: want YYYY-MM or YYYY", s)
	}
}

func parseYear(s string) (int, error) {
	y, ok := digits(s)
	if !ok || y < 1 {
		return 0, fmt.Errorf("invalid period year %q", s)
	}
	return y, nil
}

// digits parses s as an unsigned decimal number. Signs and spaces are
// rejected, unlike strconv.Atoi.
func digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Type returns monthly or yearly. Callers must validate the key first.
func (p PeriodKey) Type() PeriodType {
	if len(p) == 4 {
		return PeriodYearly
	}
	return PeriodMonthly
}

// Before reports whether p precedes other. Only meaningful for keys of the
// same type.
func (p PeriodKey) Before(other PeriodKey) bool {
	return p < other
}

func (p PeriodKey) String() string { return string(p) }
