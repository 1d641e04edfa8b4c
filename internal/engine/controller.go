package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"quantrelay/internal/command"
	"quantrelay/internal/md"
	"quantrelay/internal/risk"
	"quantrelay/internal/state"
	"quantrelay/internal/strategy"
	"quantrelay/internal/venue"
)

var ErrStopped = errors.New("engine: controller stopped")

type Venue interface {
	Connect(ctx context.Context)
	Disconnect()
	Send(frame venue.Frame) error
	State() venue.State
}

type Notifier interface {
	Notify(chatID int64, text string)
}

type Options struct {
	Symbol       string
	Currency     string
	DurationUnit string
	PriceWindow  int
	SMAWindow    int
	InboxSize    int
	// DefaultChatID receives trade notifications until an operator issues /run.
	DefaultChatID int64
}

// envelope carries exactly one of a command or a venue event.
type envelope struct {
	cmd   *command.Command
	event venue.Event
}

func (e envelope) name() string {
	if e.cmd != nil {
		return string(e.cmd.Kind)
	}
	return e.event.Type()
}

// Controller is the trading session state machine. All commands and venue
// events pass through one inbox and are handled by one goroutine, so session
// state never sees interleaved updates.
type Controller struct {
	opts     Options
	session  *state.Session
	venue    Venue
	notifier Notifier
	strategy strategy.Strategy
	journal  Journal
	prices   *md.PriceWindow

	inbox  chan envelope
	done   chan struct{}
	ctx    context.Context
	chatID int64
	// settled remembers contracts already booked so a repeated final update
	// is not counted twice.
	settled map[string]struct{}
}

func New(opts Options, session *state.Session, v Venue, notifier Notifier, strat strategy.Strategy, journal Journal) *Controller {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.PriceWindow <= 0 {
		opts.PriceWindow = 50
	}
	if opts.SMAWindow <= 0 || opts.SMAWindow > opts.PriceWindow {
		opts.SMAWindow = min(20, opts.PriceWindow)
	}
	if opts.DurationUnit == "" {
		opts.DurationUnit = "t"
	}
	if journal == nil {
		journal = discardJournal{}
	}
	return &Controller{
		opts:     opts,
		session:  session,
		venue:    v,
		notifier: notifier,
		strategy: strat,
		journal:  journal,
		prices:   md.NewPriceWindow(opts.PriceWindow),
		inbox:    make(chan envelope, opts.InboxSize),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		chatID:   opts.DefaultChatID,
		settled:  map[string]struct{}{},
	}
}

func (c *Controller) SubmitCommand(ctx context.Context, cmd command.Command) error {
	return c.submit(ctx, envelope{cmd: &cmd})
}

func (c *Controller) SubmitVenueEvent(ctx context.Context, event venue.Event) error {
	return c.submit(ctx, envelope{event: event})
}

// submit blocks while the inbox is full, which keeps per-source order intact.
func (c *Controller) submit(ctx context.Context, env envelope) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Run processes the inbox until ctx is done, then drops the venue connection.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	defer c.venue.Disconnect()

	slog.Info("session controller started", "symbol", c.opts.Symbol)
	for {
		select {
		case env := <-c.inbox:
			c.handle(env)
		case <-ctx.Done():
			slog.Info("session controller stopping")
			return ctx.Err()
		}
	}
}

func (c *Controller) handle(env envelope) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("controller panic", "event", env.name(), "panic", r, "stack", string(debug.Stack()))
		}
		if dur := time.Since(started); dur > 100*time.Millisecond {
			slog.Warn("slow event", "event", env.name(), "duration", dur)
		}
	}()

	if env.cmd != nil {
		c.onCommand(*env.cmd)
		return
	}
	c.onVenueEvent(env.event)
}

func (c *Controller) onCommand(cmd command.Command) {
	switch cmd.Kind {
	case command.Start:
		c.notify(cmd.ChatID, "Quant bot ready. Use /run to start trading.")
	case command.Run:
		if c.session.Running() && c.venue.State() != venue.Disconnected {
			c.notify(cmd.ChatID, "Trading is already running.")
			return
		}
		c.session.SetRunning(true)
		c.chatID = cmd.ChatID
		c.venue.Connect(c.ctx)
		slog.Info("trading started", "chat_id", cmd.ChatID)
		c.notify(cmd.ChatID, "Trading started. Connecting to venue.")
	case command.Stop:
		c.session.SetRunning(false)
		c.venue.Disconnect()
		slog.Info("trading stopped", "chat_id", cmd.ChatID)
		c.notify(cmd.ChatID, "Trading stopped.")
	case command.Balance:
		c.notify(cmd.ChatID, fmt.Sprintf("Current balance: %s", c.session.Balance().StringFixed(2)))
	case command.Stats:
		c.notify(cmd.ChatID, fmt.Sprintf("Trades: %d\nWin rate: %s%%", c.session.TradeCount(), c.session.WinRate().StringFixed(1)))
	default:
		slog.Debug("command ignored", "command", cmd.Kind)
	}
}

func (c *Controller) onVenueEvent(event venue.Event) {
	switch ev := event.(type) {
	case venue.Authorized:
		slog.Info("venue authorized", "login_id", ev.LoginID, "currency", ev.Currency)
		c.send(venue.SubscribeTicks{Symbol: c.opts.Symbol})
		c.send(venue.SubscribeOpenContracts{})
	case venue.BalanceUpdate:
		c.session.ObserveBalance(ev.Amount)
		slog.Debug("balance observed", "balance", ev.Amount.String())
	case venue.Tick:
		c.onTick(ev)
	case venue.Proposal:
		if err := c.send(venue.Buy{ProposalID: ev.ID, Price: ev.AskPrice}); err == nil {
			c.journal.Append(Entry{Kind: EntryBuy, Symbol: c.opts.Symbol, ProposalID: ev.ID, Price: ptr(ev.AskPrice)})
		} else {
			c.journal.Append(Entry{Kind: EntryBuy, Symbol: c.opts.Symbol, ProposalID: ev.ID, Price: ptr(ev.AskPrice), Error: err.Error()})
		}
	case venue.ContractSettled:
		c.onSettlement(ev)
	default:
		slog.Debug("venue event ignored", "type", event.Type())
	}
}

func (c *Controller) onTick(tick venue.Tick) {
	c.prices.Add(tick.Price)
	if !c.session.Running() || c.venue.State() != venue.Ready {
		return
	}

	stake := c.session.ComputeStake()
	snapshot := strategy.MarketSnapshot{
		Timestamp: time.Unix(tick.Epoch, 0).UTC(),
		Symbol:    c.opts.Symbol,
		Price:     tick.Price,
		Stake:     stake,
	}
	if sma, err := c.prices.SMA(c.opts.SMAWindow); err == nil {
		snapshot.SMA = sma
	} else {
		snapshot.SMA = tick.Price
	}

	intent := c.strategy.Decide(snapshot)
	entry := Entry{
		Kind:   EntryProposal,
		Symbol: c.opts.Symbol,
		Price:  ptr(tick.Price),
		SMA:    ptr(snapshot.SMA),
		Stake:  ptr(intent.Stake),
		Reason: intent.Reason,
	}
	err := c.send(venue.RequestProposal{
		Amount:       intent.Stake,
		ContractType: string(intent.ContractType),
		Currency:     c.opts.Currency,
		Duration:     intent.Duration,
		DurationUnit: c.opts.DurationUnit,
		Symbol:       c.opts.Symbol,
	})
	if err != nil {
		entry.Error = err.Error()
	}
	c.journal.Append(entry)
}

func (c *Controller) onSettlement(ev venue.ContractSettled) {
	if !ev.IsFinal {
		return
	}
	if ev.ContractID != "" {
		if _, seen := c.settled[ev.ContractID]; seen {
			slog.Debug("settlement already booked", "contract_id", ev.ContractID)
			return
		}
		c.settled[ev.ContractID] = struct{}{}
	}

	res := c.session.ApplySettlement(ev.Profit)
	slog.Info("trade settled", "contract_id", ev.ContractID, "profit", res.Profit.String(), "balance", res.Balance.StringFixed(2), "loss_streak", res.LossStreak)
	entry := Entry{
		Kind:       EntrySettlement,
		Symbol:     c.opts.Symbol,
		Contract:   ev.ContractID,
		Profit:     ptr(res.Profit),
		Balance:    ptr(res.Balance),
		LossStreak: res.LossStreak,
	}
	if res.DrawdownKnown {
		entry.DrawdownPct = ptr(res.DrawdownPct)
	}
	c.journal.Append(entry)
	c.notify(c.chatID, fmt.Sprintf("Trade result: %s\nBalance: %s", res.Profit.String(), res.Balance.StringFixed(2)))

	verdict := res.Verdict()
	if !verdict.Stop() {
		return
	}
	c.venue.Disconnect()
	entry.Kind = EntryRiskStop
	entry.Reason = string(verdict.Reason())
	c.journal.Append(entry)

	switch verdict.Reason() {
	case risk.ReasonDrawdown:
		c.notify(c.chatID, fmt.Sprintf("Stopped: %s%% drawdown reached.", res.DrawdownPct.StringFixed(2)))
	case risk.ReasonLossStreak:
		c.notify(c.chatID, fmt.Sprintf("Stopped: %d loss streak reached.", res.LossStreak))
	}
}

func (c *Controller) send(frame venue.Frame) error {
	err := c.venue.Send(frame)
	if err != nil {
		slog.Warn("venue send failed", "frame", frame.Name(), "error", err)
	}
	return err
}

func (c *Controller) notify(chatID int64, text string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(chatID, text)
}
