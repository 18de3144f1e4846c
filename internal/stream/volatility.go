package stream

import "math"

// EstimateVolatility derives a 0-100 volatility score from a binary outcome
// price in [0,1]. Prices near 0.5 are maximally uncertain and score highest;
// prices pinned at either bound score zero. Out-of-range prices clamp to zero
// rather than erroring, since malformed quotes must not stall ingestion.
func EstimateVolatility(price float64) float64 {
	v := (1 - 2*math.Abs(price-0.5)) * 100
	if v < 0 {
		return 0
	}
	return v
}
