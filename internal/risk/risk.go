package risk

import (
	"log/slog"

	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonNone       Reason = ""
	ReasonLossStreak Reason = "loss_streak"
	ReasonDrawdown   Reason = "drawdown"
)

var hundred = decimal.NewFromInt(100)

type Limits struct {
	MaxLossStreak  int
	MaxDrawdownPct decimal.Decimal
}

func DefaultLimits() Limits {
	return Limits{
		MaxLossStreak:  3,
		MaxDrawdownPct: decimal.NewFromInt(5),
	}
}

type Verdict struct {
	StopLossStreak bool
	StopDrawdown   bool
}

func (v Verdict) Stop() bool {
	return v.StopLossStreak || v.StopDrawdown
}

// Reason reports the stop cause. Drawdown is checked after the loss streak,
// so it wins when both trip on the same settlement.
func (v Verdict) Reason() Reason {
	switch {
	case v.StopDrawdown:
		return ReasonDrawdown
	case v.StopLossStreak:
		return ReasonLossStreak
	default:
		return ReasonNone
	}
}

// Drawdown returns the percentage decline of balance from initial. ok is false
// when no baseline exists yet.
func Drawdown(initial, balance decimal.Decimal) (decimal.Decimal, bool) {
	if initial.IsZero() {
		return decimal.Zero, false
	}
	return initial.Sub(balance).Div(initial).Mul(hundred), true
}

func (l Limits) Evaluate(lossStreak int, drawdownPct decimal.Decimal, drawdownKnown bool) Verdict {
	var v Verdict
	if lossStreak >= l.MaxLossStreak {
		v.StopLossStreak = true
		slog.Info("risk stop", "reason", ReasonLossStreak, "loss_streak", lossStreak, "max", l.MaxLossStreak)
	}
	if drawdownKnown && drawdownPct.GreaterThanOrEqual(l.MaxDrawdownPct) {
		v.StopDrawdown = true
		slog.Info("risk stop", "reason", ReasonDrawdown, "drawdown_pct", drawdownPct.StringFixed(2), "max", l.MaxDrawdownPct.String())
	}
	return v
}

type Sizer struct {
	MinFraction decimal.Decimal
	MaxFraction decimal.Decimal
}

func DefaultSizer() Sizer {
	return Sizer{
		MinFraction: decimal.RequireFromString("0.01"),
		MaxFraction: decimal.RequireFromString("0.02"),
	}
}

// Stake is min(balance*MinFraction, balance*MaxFraction). With the default
// fractions this is always 1% of balance.
func (s Sizer) Stake(balance decimal.Decimal) decimal.Decimal {
	return decimal.Min(balance.Mul(s.MinFraction), balance.Mul(s.MaxFraction))
}
