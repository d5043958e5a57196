package actions

import (
	"fmt"
	"strings"

	"github.com/mkravets/agenda/internal/apperr"
)

// ParseMoney converts a decimal amount string ("25.50") to integer cents
// without ever passing through binary floating point. Digits beyond two
// decimal places round half up.
func ParseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", apperr.ErrValidation)
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || (fracPart != "" && !allDigits(fracPart)) {
		return 0, fmt.Errorf("%w: %q is not a decimal amount", apperr.ErrValidation, s)
	}

	var cents int64
	for _, d := range intPart {
		cents = cents*10 + int64(d-'0')
		if cents > 1<<53 {
			return 0, fmt.Errorf("%w: amount %q out of range", apperr.ErrValidation, s)
		}
	}
	cents *= 100

	switch {
	case len(fracPart) == 0:
	case len(fracPart) == 1:
		cents += int64(fracPart[0]-'0') * 10
	default:
		cents += int64(fracPart[0]-'0')*10 + int64(fracPart[1]-'0')
		if len(fracPart) > 2 && fracPart[2] >= '5' {
			cents++
		}
	}
	return cents, nil
}

// FormatMoney renders cents back to a decimal string.
func FormatMoney(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
