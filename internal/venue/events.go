package venue

import (
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Event is an inbound protocol message the controller acts on.
type Event interface {
	Type() string
}

type Authorized struct {
	LoginID  string
	Currency string
}

type BalanceUpdate struct {
	Amount   decimal.Decimal
	Currency string
}

type Tick struct {
	Symbol string
	Price  decimal.Decimal
	Epoch  int64
}

type Proposal struct {
	ID       string
	AskPrice decimal.Decimal
}

type ContractSettled struct {
	ContractID string
	Profit     decimal.Decimal
	IsFinal    bool
}

func (Authorized) Type() string      { return "authorize" }
func (BalanceUpdate) Type() string   { return "balance" }
func (Tick) Type() string            { return "tick" }
func (Proposal) Type() string        { return "proposal" }
func (ContractSettled) Type() string { return "proposal_open_contract" }

// Decode classifies one raw frame by msg_type. Malformed JSON, venue error
// replies and unknown types produce no event.
func Decode(raw []byte) (Event, bool) {
	if !gjson.ValidBytes(raw) {
		slog.Warn("venue frame malformed", "size", len(raw))
		return nil, false
	}
	frame := gjson.ParseBytes(raw)
	msgType := frame.Get("msg_type").String()

	if errMsg := frame.Get("error"); errMsg.Exists() {
		slog.Warn("venue error reply", "msg_type", msgType, "code", errMsg.Get("code").String(), "message", errMsg.Get("message").String())
		return nil, false
	}

	switch msgType {
	case "authorize":
		return Authorized{
			LoginID:  frame.Get("authorize.loginid").String(),
			Currency: frame.Get("authorize.currency").String(),
		}, true
	case "balance":
		amount, ok := decimalField(frame, "balance.balance")
		if !ok {
			return nil, false
		}
		return BalanceUpdate{Amount: amount, Currency: frame.Get("balance.currency").String()}, true
	case "tick":
		price, ok := decimalField(frame, "tick.quote")
		if !ok {
			return nil, false
		}
		return Tick{
			Symbol: frame.Get("tick.symbol").String(),
			Price:  price,
			Epoch:  frame.Get("tick.epoch").Int(),
		}, true
	case "proposal":
		id := frame.Get("proposal.id").String()
		ask, ok := decimalField(frame, "proposal.ask_price")
		if id == "" || !ok {
			slog.Warn("venue proposal incomplete", "id", id)
			return nil, false
		}
		return Proposal{ID: id, AskPrice: ask}, true
	case "proposal_open_contract":
		contract := frame.Get("proposal_open_contract")
		if !contract.IsObject() {
			return nil, false
		}
		settled := ContractSettled{
			ContractID: contract.Get("contract_id").String(),
			IsFinal:    truthy(contract.Get("is_sold")),
		}
		if profit, ok := decimalField(contract, "profit"); ok {
			settled.Profit = profit
		} else if settled.IsFinal {
			slog.Warn("venue settlement without profit", "contract_id", settled.ContractID)
			return nil, false
		}
		return settled, true
	default:
		slog.Debug("venue frame ignored", "msg_type", msgType)
		return nil, false
	}
}

func decimalField(r gjson.Result, path string) (decimal.Decimal, bool) {
	v := r.Get(path)
	if !v.Exists() {
		return decimal.Zero, false
	}
	var raw string
	if v.Type == gjson.String {
		raw = v.Str
	} else {
		raw = v.Raw
	}
	out, err := decimal.NewFromString(raw)
	if err != nil {
		slog.Warn("venue numeric field invalid", "path", path, "value", raw)
		return decimal.Zero, false
	}
	return out, true
}

// truthy accepts both 1/0 and true/false, the venue uses either.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str == "1" || r.Str == "true"
	default:
		return false
	}
}
