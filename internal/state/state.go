package state

import (
	"sync"

	"quantrelay/internal/risk"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Snapshot struct {
	Running        bool
	Balance        decimal.Decimal
	InitialBalance decimal.Decimal
	LossStreak     int
	Trades         []decimal.Decimal
}

type Settlement struct {
	Profit         decimal.Decimal
	Balance        decimal.Decimal
	LossStreak     int
	DrawdownPct    decimal.Decimal
	DrawdownKnown  bool
	StopLossStreak bool
	StopDrawdown   bool
}

func (s Settlement) Verdict() risk.Verdict {
	return risk.Verdict{StopLossStreak: s.StopLossStreak, StopDrawdown: s.StopDrawdown}
}

// Session is the process-wide trading session state. Only the session
// controller mutates it; readers take a Snapshot.
type Session struct {
	mu       sync.RWMutex
	limits   risk.Limits
	sizer    risk.Sizer
	snapshot Snapshot
}

func NewSession(limits risk.Limits, sizer risk.Sizer) *Session {
	return &Session{
		limits: limits,
		sizer:  sizer,
		snapshot: Snapshot{
			Trades: []decimal.Decimal{},
		},
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copy := s.snapshot
	copy.Trades = append([]decimal.Decimal(nil), s.snapshot.Trades...)
	return copy
}

func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Running
}

func (s *Session) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Running = running
}

func (s *Session) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Balance
}

// ObserveBalance records the latest account balance. The first non-zero
// observation becomes the drawdown baseline and is never replaced.
func (s *Session) ObserveBalance(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Balance = amount
	if s.snapshot.InitialBalance.IsZero() {
		s.snapshot.InitialBalance = amount
	}
}

// ApplySettlement books one final contract result. Ledger, streak, balance and
// the running flag change under a single lock.
func (s *Session) ApplySettlement(profit decimal.Decimal) Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Trades = append(s.snapshot.Trades, profit)
	if profit.IsNegative() {
		s.snapshot.LossStreak++
	} else {
		s.snapshot.LossStreak = 0
	}
	s.snapshot.Balance = s.snapshot.Balance.Add(profit)

	pct, known := risk.Drawdown(s.snapshot.InitialBalance, s.snapshot.Balance)
	verdict := s.limits.Evaluate(s.snapshot.LossStreak, pct, known)
	if verdict.Stop() {
		s.snapshot.Running = false
	}

	return Settlement{
		Profit:         profit,
		Balance:        s.snapshot.Balance,
		LossStreak:     s.snapshot.LossStreak,
		DrawdownPct:    pct,
		DrawdownKnown:  known,
		StopLossStreak: verdict.StopLossStreak,
		StopDrawdown:   verdict.StopDrawdown,
	}
}

func (s *Session) ComputeStake() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sizer.Stake(s.snapshot.Balance)
}

// WinRate is the percentage of settled trades with positive profit, 0 when
// nothing has settled.
func (s *Session) WinRate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return winRate(s.snapshot.Trades)
}

func (s *Session) TradeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot.Trades)
}

func winRate(trades []decimal.Decimal) decimal.Decimal {
	if len(trades) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, t := range trades {
		if t.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(trades)))).Mul(hundred)
}
