package strategy

// Rise proposes a CALL contract on every tick, staking whatever the session
// sized for it.
type Rise struct {
	Duration int
}

func (r Rise) Decide(snapshot MarketSnapshot) TradeIntent {
	return TradeIntent{
		ContractType: Call,
		Stake:        snapshot.Stake,
		Duration:     r.Duration,
		Reason:       "tick",
	}
}
