package domain

import "github.com/shopspring/decimal"

// RatingAggregate is a clinic's running mean rating. Average is meaningless
// when Count is zero.
type RatingAggregate struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// NextAggregate folds one more rating into prior.
//
// The new average is rounded to 2 decimal places, half away from zero
// (half-up for the positive ratings stored here): 1.125 becomes 1.13.
// A prior with no count starts over at the new rating. A zero average with a
// positive count is still folded in so Count keeps matching the number of
// reviews. rating must already be validated by the caller.
func NextAggregate(prior RatingAggregate, rating float64) RatingAggregate {
	if prior.Count <= 0 {
		return RatingAggregate{Average: rating, Count: 1}
	}
	n := prior.Count + 1
	sum := decimal.NewFromFloat(prior.Average).
		Mul(decimal.NewFromInt(int64(prior.Count))).
		Add(decimal.NewFromFloat(rating))
	avg := sum.DivRound(decimal.NewFromInt(int64(n)), 2)
	return RatingAggregate{Average: avg.InexactFloat64(), Count: n}
}

// Drifted reports an aggregate that cannot come from ratings in 1..5.
func (a RatingAggregate) Drifted() bool {
	return a.Count > 0 && a.Average <= 0
}

// Round2 rounds v to 2 decimal places using the same rule as NextAggregate.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
