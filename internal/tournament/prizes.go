package tournament

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/arenacore/internal/apperr"
)

// PrizeShares splits pool by percentage, flooring each share.
func PrizeShares(pool int64, split []int) []int64 {
	out := make([]int64, len(split))
	if pool <= 0 {
		return out
	}
	hundred := decimal.NewFromInt(100)
	p := decimal.NewFromInt(pool)
	for i, pct := range split {
		out[i] = p.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Floor().IntPart()
	}
	return out
}

// ValidateSplit requires positive percentages summing to at most 100.
func ValidateSplit(split []int) error {
	if len(split) == 0 {
		return apperr.Validation("prize_split", "prize split must not be empty")
	}
	if len(split) > MaxEntries {
		return apperr.Validation("prize_split", "prize split has more places than seats")
	}
	total := 0
	for _, pct := range split {
		if pct <= 0 {
			return apperr.Validation("prize_split", "prize percentages must be positive")
		}
		total += pct
	}
	if total > 100 {
		return apperr.Validation("prize_split", "prize percentages exceed 100")
	}
	return nil
}
