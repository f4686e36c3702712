package pricing

import "math"

// TickSize converts raw order-book ticks into quote-per-base display prices:
// (quoteLot * 10^baseDecimals) / (baseLot * 10^quoteDecimals). Zero lots
// produce Inf or NaN.
func TickSize(baseLotSize, quoteLotSize uint64, baseDecimals, quoteDecimals uint8) float64 {
	numerator := float64(quoteLotSize) * math.Pow10(int(baseDecimals))
	denominator := float64(baseLotSize) * math.Pow10(int(quoteDecimals))
	return numerator / denominator
}
