package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVenue struct {
	t        *testing.T
	server   *httptest.Server
	received chan map[string]any
	mu       sync.Mutex
	conn     *websocket.Conn
}

func newFakeVenue(t *testing.T) *fakeVenue {
	t.Helper()
	fv := &fakeVenue{t: t, received: make(chan map[string]any, 32)}
	upgrader := websocket.Upgrader{}
	fv.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fv.mu.Lock()
		fv.conn = conn
		fv.mu.Unlock()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(raw, &msg); err == nil {
				fv.received <- msg
			}
		}
	}))
	t.Cleanup(fv.server.Close)
	return fv
}

func (fv *fakeVenue) url() string {
	return "ws" + strings.TrimPrefix(fv.server.URL, "http")
}

func (fv *fakeVenue) push(frame string) {
	fv.t.Helper()
	fv.mu.Lock()
	defer fv.mu.Unlock()
	require.NotNil(fv.t, fv.conn)
	require.NoError(fv.t, fv.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (fv *fakeVenue) next() map[string]any {
	fv.t.Helper()
	select {
	case msg := <-fv.received:
		return msg
	case <-time.After(2 * time.Second):
		fv.t.Fatalf("timed out waiting for outbound frame")
		return nil
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func connectReady(t *testing.T, fv *fakeVenue, rec *recorder) *Client {
	t.Helper()
	client := New(Options{URL: fv.url(), Token: "secret"}, rec.handle)
	client.Connect(context.Background())
	t.Cleanup(client.Disconnect)

	auth := fv.next()
	require.Equal(t, "secret", auth["authorize"])
	assert.Equal(t, Authenticating, client.State())

	fv.push(`{"msg_type":"authorize","authorize":{"loginid":"CR1","currency":"USD"}}`)
	balance := fv.next()
	assert.EqualValues(t, 1, balance["balance"])
	require.Eventually(t, func() bool { return client.State() == Ready }, 2*time.Second, 10*time.Millisecond)
	return client
}

func TestClientHandshakeReachesReady(t *testing.T) {
	fv := newFakeVenue(t)
	rec := &recorder{}
	connectReady(t, fv, rec)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 10*time.Millisecond)
	auth, ok := rec.all()[0].(Authorized)
	require.True(t, ok)
	assert.Equal(t, "CR1", auth.LoginID)
}

func TestClientGatesFramesUntilReady(t *testing.T) {
	client := New(Options{URL: "ws://127.0.0.1:1"}, nil)

	err := client.Send(Buy{ProposalID: "p1", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotReady)
	err = client.Send(SubscribeTicks{Symbol: "R_75"})
	assert.ErrorIs(t, err, ErrNotReady)
	err = client.Send(RequestProposal{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestClientDispatchesEventsWhileReady(t *testing.T) {
	fv := newFakeVenue(t)
	rec := &recorder{}
	client := connectReady(t, fv, rec)

	require.NoError(t, client.Send(SubscribeTicks{Symbol: "R_75"}))
	sub := fv.next()
	assert.Equal(t, "R_75", sub["ticks"])
	assert.EqualValues(t, 1, sub["subscribe"])

	fv.push(`{"msg_type":"mystery","mystery":{}}`)
	fv.push(`not json`)
	fv.push(`{"msg_type":"tick","tick":{"symbol":"R_75","quote":1234.56,"epoch":10}}`)
	fv.push(`{"msg_type":"balance","balance":{"balance":"100.50","currency":"USD"}}`)

	require.Eventually(t, func() bool { return len(rec.all()) == 3 }, 2*time.Second, 10*time.Millisecond)
	events := rec.all()
	tick, ok := events[1].(Tick)
	require.True(t, ok)
	assert.True(t, tick.Price.Equal(decimal.RequireFromString("1234.56")))
	bal, ok := events[2].(BalanceUpdate)
	require.True(t, ok)
	assert.True(t, bal.Amount.Equal(decimal.RequireFromString("100.5")))
}

func TestClientDisconnectIsImmediate(t *testing.T) {
	fv := newFakeVenue(t)
	rec := &recorder{}
	client := connectReady(t, fv, rec)

	client.Disconnect()

	assert.Equal(t, Disconnected, client.State())
	assert.ErrorIs(t, client.Send(Buy{ProposalID: "p", Price: decimal.NewFromInt(1)}), ErrNotReady)
}

func TestClientDropToDisconnectedOnTransportLoss(t *testing.T) {
	fv := newFakeVenue(t)
	rec := &recorder{}
	client := connectReady(t, fv, rec)

	fv.mu.Lock()
	_ = fv.conn.Close()
	fv.mu.Unlock()

	require.Eventually(t, func() bool { return client.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
}

func TestClientDialFailureReturnsToDisconnected(t *testing.T) {
	client := New(Options{URL: "ws://127.0.0.1:1/unreachable"}, nil)
	client.Connect(context.Background())

	require.Eventually(t, func() bool { return client.State() == Disconnected }, 5*time.Second, 10*time.Millisecond)
}
