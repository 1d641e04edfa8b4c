package venue

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundFrameShapes(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"authorize", Authorize{Token: "tok"}, `{"authorize":"tok"}`},
		{"balance", SubscribeBalance{}, `{"balance":1}`},
		{"ticks", SubscribeTicks{Symbol: "R_75"}, `{"subscribe":1,"ticks":"R_75"}`},
		{"open contracts", SubscribeOpenContracts{}, `{"proposal_open_contract":1,"subscribe":1}`},
		{
			"proposal",
			RequestProposal{
				Amount:       decimal.RequireFromString("12.3456"),
				ContractType: "CALL",
				Currency:     "USD",
				Duration:     5,
				DurationUnit: "t",
				Symbol:       "R_75",
			},
			`{"proposal":1,"amount":12.34,"basis":"stake","contract_type":"CALL","currency":"USD","duration":5,"duration_unit":"t","symbol":"R_75"}`,
		},
		{"buy", Buy{ProposalID: "abc", Price: decimal.RequireFromString("10.5")}, `{"buy":"abc","price":10.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.frame)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestDecodeKnownFrames(t *testing.T) {
	ev, ok := Decode([]byte(`{"msg_type":"proposal","proposal":{"id":"p-1","ask_price":"9.99"}}`))
	require.True(t, ok)
	prop := ev.(Proposal)
	assert.Equal(t, "p-1", prop.ID)
	assert.True(t, prop.AskPrice.Equal(decimal.RequireFromString("9.99")))

	ev, ok = Decode([]byte(`{"msg_type":"proposal_open_contract","proposal_open_contract":{"contract_id":42,"profit":-0.95,"is_sold":1}}`))
	require.True(t, ok)
	settled := ev.(ContractSettled)
	assert.Equal(t, "42", settled.ContractID)
	assert.True(t, settled.IsFinal)
	assert.True(t, settled.Profit.Equal(decimal.RequireFromString("-0.95")))

	ev, ok = Decode([]byte(`{"msg_type":"proposal_open_contract","proposal_open_contract":{"contract_id":42,"profit":"0.10","is_sold":0}}`))
	require.True(t, ok)
	assert.False(t, ev.(ContractSettled).IsFinal)
}

func TestDecodeRejectsUnusableFrames(t *testing.T) {
	for _, raw := range []string{
		`{"msg_type":"unknown_type","x":1}`,
		`{"msg_type":`,
		`{"msg_type":"buy","error":{"code":"InvalidPrice","message":"bad"}}`,
		`{"msg_type":"balance","balance":{}}`,
		`{"msg_type":"proposal","proposal":{"ask_price":1}}`,
		`{"msg_type":"proposal_open_contract","proposal_open_contract":{"is_sold":1}}`,
	} {
		_, ok := Decode([]byte(raw))
		assert.False(t, ok, raw)
	}
}
