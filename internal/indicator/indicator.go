// Package indicator computes technical indicators (SMA, EMA, RSI) over
// decimal price series, rounded to 8 decimal places with HALF_UP semantics
// to match the precision carried by the rest of the domain.
package indicator

import (
	"github.com/shopspring/decimal"
)

// Scale is the fixed decimal precision every indicator result is rounded
// to.
const Scale = 8

// roundHalfUp applies HALF_UP rounding at Scale. decimal.Round() rounds
// half away from zero, which matches HALF_UP for the non-negative prices
// this package operates on.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// SMA computes the simple moving average of the last `period` prices.
// Returns decimal.Zero if fewer than `period` prices are supplied.
func SMA(prices []decimal.Decimal, period int) decimal.Decimal {
	if period <= 0 || len(prices) < period {
		return decimal.Zero
	}
	window := prices[len(prices)-period:]
	sum := decimal.Zero
	for _, p := range window {
		sum = sum.Add(p)
	}
	return roundHalfUp(sum.Div(decimal.NewFromInt(int64(period))))
}

// EMA computes the exponential moving average over the full price series,
// seeded with the SMA of the first `period` prices.
func EMA(prices []decimal.Decimal, period int) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	if len(prices) < period {
		return SMA(prices, len(prices))
	}

	multiplier := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))

	ema := SMA(prices[:period], period)
	for i := period; i < len(prices); i++ {
		ema = prices[i].Sub(ema).Mul(multiplier).Add(ema)
	}
	return roundHalfUp(ema)
}

// RSI computes the Relative Strength Index using Wilder's smoothing, over
// the full price series for the given period. Returns 50 (neutral) when
// there isn't enough history.
func RSI(prices []decimal.Decimal, period int) decimal.Decimal {
	if period <= 0 || len(prices) < period+1 {
		return decimal.NewFromInt(50)
	}

	gains := make([]decimal.Decimal, 0, len(prices)-1)
	losses := make([]decimal.Decimal, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i].Sub(prices[i-1])
		if change.IsPositive() {
			gains = append(gains, change)
			losses = append(losses, decimal.Zero)
		} else {
			gains = append(gains, decimal.Zero)
			losses = append(losses, change.Neg())
		}
	}

	if len(gains) < period {
		return decimal.NewFromInt(50)
	}

	avgGain := avg(gains[:period])
	avgLoss := avg(losses[:period])

	periodDec := decimal.NewFromInt(int64(period))
	periodMinus1 := decimal.NewFromInt(int64(period - 1))

	for i := period; i < len(gains); i++ {
		avgGain = avgGain.Mul(periodMinus1).Add(gains[i]).Div(periodDec)
		avgLoss = avgLoss.Mul(periodMinus1).Add(losses[i]).Div(periodDec)
	}

	if avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}

	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	return roundHalfUp(rsi)
}

func avg(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}
