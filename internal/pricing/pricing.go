// Package pricing turns spreadsheet price and quantity cells, written with
// either European or US separators, into canonical numbers.
package pricing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// 1.234,56 / 123,45
	commaDecimal = regexp.MustCompile(`^-?(\d{1,3}(\.\d{3})*|\d+),\d+$`)
	// 1,234.56
	dotDecimal = regexp.MustCompile(`^-?\d{1,3}(,\d{3})*\.\d+$`)
)

// Normalize rewrites raw into a dot-decimal string without grouping
// separators. The boolean is false when there is nothing to normalize.
func Normalize(raw string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return "", false
	}

	switch {
	case commaDecimal.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dotDecimal.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s, true
}

// NormalizeValue accepts the loosely typed values a spreadsheet cell may
// carry. nil has no normalized value.
func NormalizeValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return Normalize(t)
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return Normalize(fmt.Sprint(t))
	}
}

// ToMinorUnits converts a raw price to an integer amount of cents,
// truncating anything past the second decimal. Unparseable input yields 0.
func ToMinorUnits(raw string) int64 {
	cents, _ := ParseMinorUnits(raw)
	return cents
}

// ParseMinorUnits is ToMinorUnits for callers that need to tell a zero
// price from an unreadable one.
func ParseMinorUnits(raw string) (int64, bool) {
	s, ok := Normalize(raw)
	if !ok {
		return 0, false
	}
	if cents, ok := decimalToMinor(s); ok {
		return cents, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f*100) >= math.MaxInt64 {
		return 0, false
	}
	// float64 cannot hold most two-decimal values exactly; nudge away
	// from zero before truncating so 1234.56 does not become 123455.
	return int64(f*100 + math.Copysign(1e-6, f)), true
}

// ParseQuantity reads a stock style integer. Fractions are truncated.
func ParseQuantity(raw string) (int64, bool) {
	s, ok := Normalize(raw)
	if !ok {
		return 0, false
	}
	if cents, ok := decimalToMinor(s); ok {
		return cents / 100, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// decimalToMinor handles the plain "-123.4567" form exactly, without going
// through float64.
func decimalToMinor(s string) (int64, bool) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, false
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, false
	}
	if whole == "" {
		whole = "0"
	}
	frac = (frac + "00")[:2]

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > (math.MaxInt64-99)/100 {
		return 0, false
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	total := units*100 + cents
	if neg {
		total = -total
	}
	return total, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
