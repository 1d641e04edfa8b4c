package state

import (
	"testing"

	"quantrelay/internal/risk"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSession(initial string) *Session {
	s := NewSession(risk.DefaultLimits(), risk.DefaultSizer())
	s.ObserveBalance(d(initial))
	s.SetRunning(true)
	return s
}

func TestObserveBalanceKeepsFirstBaseline(t *testing.T) {
	s := NewSession(risk.DefaultLimits(), risk.DefaultSizer())
	s.ObserveBalance(d("100"))
	s.ObserveBalance(d("250"))
	s.ObserveBalance(d("10"))

	snap := s.Snapshot()
	assert.True(t, snap.InitialBalance.Equal(d("100")))
	assert.True(t, snap.Balance.Equal(d("10")))
}

func TestLossStreakTracksTrailingLosses(t *testing.T) {
	s := newSession("10000")
	profits := []string{"-1", "-1", "2", "-1", "0", "-1", "-1"}
	want := []int{1, 2, 0, 1, 0, 1, 2}

	for i, p := range profits {
		res := s.ApplySettlement(d(p))
		assert.Equal(t, want[i], res.LossStreak, "after settlement %d", i)
		snap := s.Snapshot()
		assert.Len(t, snap.Trades, i+1)
		assert.Equal(t, res.LossStreak, snap.LossStreak)
	}
}

func TestThreeLossesStopSession(t *testing.T) {
	s := newSession("100")

	var res Settlement
	for i := 0; i < 3; i++ {
		res = s.ApplySettlement(d("-1"))
	}

	assert.Equal(t, 3, res.LossStreak)
	assert.True(t, res.StopLossStreak)
	assert.False(t, res.StopDrawdown)
	assert.Equal(t, risk.ReasonLossStreak, res.Verdict().Reason())
	assert.False(t, s.Running())
}

func TestDrawdownStopsSession(t *testing.T) {
	s := newSession("100")

	res := s.ApplySettlement(d("-6"))

	assert.True(t, res.Balance.Equal(d("94")))
	require.True(t, res.DrawdownKnown)
	assert.True(t, res.DrawdownPct.Equal(d("6")))
	assert.True(t, res.StopDrawdown)
	assert.Equal(t, 1, res.LossStreak)
	assert.Equal(t, risk.ReasonDrawdown, res.Verdict().Reason())
	assert.False(t, s.Running())
}

func TestDrawdownUsesFirstObservedBalance(t *testing.T) {
	s := newSession("100")
	s.ObserveBalance(d("200"))

	res := s.ApplySettlement(d("-1"))

	assert.False(t, res.StopDrawdown)
	assert.True(t, s.Running())
}

func TestSettlementWithoutBaselineSkipsDrawdown(t *testing.T) {
	s := NewSession(risk.DefaultLimits(), risk.DefaultSizer())
	s.SetRunning(true)

	res := s.ApplySettlement(d("-50"))

	assert.False(t, res.DrawdownKnown)
	assert.False(t, res.StopDrawdown)
	assert.True(t, s.Running())
}

func TestComputeStakeNeverExceedsOnePercent(t *testing.T) {
	s := newSession("1234.56")
	stake := s.ComputeStake()
	assert.True(t, stake.LessThanOrEqual(d("12.3456")))
	assert.True(t, stake.Equal(d("12.3456")))
}

func TestWinRate(t *testing.T) {
	s := newSession("1000")
	assert.True(t, s.WinRate().IsZero())

	for _, p := range []string{"10", "-5", "20"} {
		s.ApplySettlement(d(p))
	}

	assert.Equal(t, 3, s.TradeCount())
	assert.Equal(t, "66.7", s.WinRate().StringFixed(1))
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newSession("100")
	s.ApplySettlement(d("1"))

	snap := s.Snapshot()
	snap.Trades[0] = d("999")

	assert.True(t, s.Snapshot().Trades[0].Equal(d("1")))
}
