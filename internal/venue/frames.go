package venue

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Frame is an outbound protocol message.
type Frame interface {
	Name() string
	// Gated frames may only be sent while the client is Ready.
	Gated() bool
	json.Marshaler
}

type Authorize struct {
	Token string
}

func (Authorize) Name() string { return "authorize" }
func (Authorize) Gated() bool  { return false }

func (f Authorize) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"authorize": f.Token})
}

type SubscribeBalance struct{}

func (SubscribeBalance) Name() string { return "balance" }
func (SubscribeBalance) Gated() bool  { return false }

func (SubscribeBalance) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"balance": 1})
}

type SubscribeTicks struct {
	Symbol string
}

func (SubscribeTicks) Name() string { return "ticks" }
func (SubscribeTicks) Gated() bool  { return true }

func (f SubscribeTicks) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"ticks": f.Symbol, "subscribe": 1})
}

// SubscribeOpenContracts asks the venue to stream updates for every open
// contract on the account, which is where settlements come from.
type SubscribeOpenContracts struct{}

func (SubscribeOpenContracts) Name() string { return "proposal_open_contract" }
func (SubscribeOpenContracts) Gated() bool  { return true }

func (SubscribeOpenContracts) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"proposal_open_contract": 1, "subscribe": 1})
}

type RequestProposal struct {
	Amount       decimal.Decimal
	ContractType string
	Currency     string
	Duration     int
	DurationUnit string
	Symbol       string
}

func (RequestProposal) Name() string { return "proposal" }
func (RequestProposal) Gated() bool  { return true }

func (f RequestProposal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Proposal     int         `json:"proposal"`
		Amount       json.Number `json:"amount"`
		Basis        string      `json:"basis"`
		ContractType string      `json:"contract_type"`
		Currency     string      `json:"currency"`
		Duration     int         `json:"duration"`
		DurationUnit string      `json:"duration_unit"`
		Symbol       string      `json:"symbol"`
	}{
		Proposal:     1,
		Amount:       money(f.Amount),
		Basis:        "stake",
		ContractType: f.ContractType,
		Currency:     f.Currency,
		Duration:     f.Duration,
		DurationUnit: f.DurationUnit,
		Symbol:       f.Symbol,
	})
}

type Buy struct {
	ProposalID string
	Price      decimal.Decimal
}

func (Buy) Name() string { return "buy" }
func (Buy) Gated() bool  { return true }

func (f Buy) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Buy   string      `json:"buy"`
		Price json.Number `json:"price"`
	}{
		Buy:   f.ProposalID,
		Price: json.Number(f.Price.String()),
	})
}

// money renders a currency amount with two decimals, truncated so the venue
// never sees more than was computed.
func money(v decimal.Decimal) json.Number {
	return json.Number(v.Truncate(2).StringFixed(2))
}
