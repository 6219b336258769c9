package services

import "time"

type refundTier struct {
	minUntilDeparture time.Duration
	percent           int64
}

// Ordered from the most generous tier down.
var refundTiers = []refundTier{
	{minUntilDeparture: 24 * time.Hour, percent: 90},
	{minUntilDeparture: 12 * time.Hour, percent: 70},
	{minUntilDeparture: 6 * time.Hour, percent: 50},
	{minUntilDeparture: 2 * time.Hour, percent: 25},
}

// RefundAmount returns how much of totalAmount goes back to a passenger who
// cancels at cancelTime. Amounts are in the currency's minor unit and the
// result is rounded half up.
func RefundAmount(totalAmount int64, departureTime, cancelTime time.Time) int64 {
	if totalAmount <= 0 {
		return 0
	}
	untilDeparture := departureTime.Sub(cancelTime)
	for _, tier := range refundTiers {
		if untilDeparture >= tier.minUntilDeparture {
			return percentOf(totalAmount, tier.percent)
		}
	}
	return 0
}

func percentOf(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}
