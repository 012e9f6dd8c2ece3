package utils

import (
	"github.com/shopspring/decimal"
)

var minorPerMajor = decimal.NewFromInt(100)

// ToMajor converts minor units (kobo, cents) to a decimal amount.
func ToMajor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorPerMajor)
}

// ToMinor converts a decimal amount to minor units, rounding half away from zero.
func ToMinor(major decimal.Decimal) int64 {
	return major.Mul(minorPerMajor).Round(0).IntPart()
}

// CeilDiv returns ceil(a/b) for positive b.
func CeilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol int64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
