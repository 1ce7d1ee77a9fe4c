package gateway

import (
	"fmt"
	"math"
)

// Monetary conversion lives here and nowhere else, so the amount a customer is
// quoted and the amount a provider captures cannot drift. All rounding is
// half-even.

// Round2 rounds an amount to two decimal places, half to even.
func Round2(amount float64) float64 {
	return math.RoundToEven(amount*100) / 100
}

// MinorUnits converts a decimal amount to integer minor units (cents).
func MinorUnits(amount float64) int64 {
	return int64(math.RoundToEven(amount * 100))
}

// AmountString renders an amount as a fixed 2-decimal string for providers
// that take decimal strings on the wire.
func AmountString(amount float64) string {
	return fmt.Sprintf("%.2f", Round2(amount))
}
