package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingIntervalsPerYear assumes the default 8h funding schedule.
var FundingIntervalsPerYear = decimal.NewFromInt(3 * 365)

type FundingSample struct {
	Time time.Time
	Rate decimal.Decimal
}

type FundingSummary struct {
	Samples        int
	Latest         decimal.Decimal
	Average        decimal.Decimal
	AnnualizedAPR  decimal.Decimal
	LatestTime     time.Time
	ShortCollected bool
}

// SummarizeFunding averages the samples. A positive rate means shorts are paid.
func SummarizeFunding(samples []FundingSample) FundingSummary {
	if len(samples) == 0 {
		return FundingSummary{}
	}
	var sum decimal.Decimal
	latest := samples[0]
	for _, s := range samples {
		sum = sum.Add(s.Rate)
		if s.Time.After(latest.Time) {
			latest = s
		}
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(samples))))
	return FundingSummary{
		Samples:        len(samples),
		Latest:         latest.Rate,
		Average:        avg,
		AnnualizedAPR:  avg.Mul(FundingIntervalsPerYear),
		LatestTime:     latest.Time,
		ShortCollected: avg.IsPositive(),
	}
}

// HedgeFunding estimates funding owed to (positive) or paid by (negative) a
// position of positionAmt at markPrice over one interval.
func HedgeFunding(positionAmt, markPrice, rate decimal.Decimal) decimal.Decimal {
	return positionAmt.Mul(markPrice).Mul(rate).Neg()
}
