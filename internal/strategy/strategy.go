package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContractType string

const (
	Call ContractType = "CALL"
	Put  ContractType = "PUT"
)

type MarketSnapshot struct {
	Timestamp time.Time
	Symbol    string
	Price     decimal.Decimal
	SMA       decimal.Decimal
	Stake     decimal.Decimal
}

type TradeIntent struct {
	ContractType ContractType
	Stake        decimal.Decimal
	Duration     int
	Reason       string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}
