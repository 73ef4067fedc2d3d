package utils

import (
	"strings"

	"golang.org/x/text/currency"
)

// NormalizeCurrency returns the lower-case ISO 4217 code, or "" when code is
// not a known currency.
func NormalizeCurrency(code string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return ""
	}
	return strings.ToLower(unit.String())
}

// MilliunitsToMinor converts an App Store price (thousandths of the major
// unit) to minor units of code, rounding half away from zero.
func MilliunitsToMinor(milliunits int64, code string) int64 {
	return rescale(milliunits, 3, code)
}

// MicrosToMinor converts a Play Store price (millionths of the major unit)
// to minor units of code.
func MicrosToMinor(micros int64, code string) int64 {
	return rescale(micros, 6, code)
}

func rescale(value int64, fromScale int, code string) int64 {
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}
	diff := fromScale - scale
	if diff <= 0 {
		return value * pow10(-diff)
	}
	div := pow10(diff)
	half := div / 2
	if value < 0 {
		return -((-value + half) / div)
	}
	return (value + half) / div
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
