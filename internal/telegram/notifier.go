package telegram

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type NotifierOptions struct {
	QueueSize   int
	RatePerSec  float64
	Burst       int
	Attempts    int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

type note struct {
	chatID int64
	text   string
}

// Notifier delivers operator messages in the background. Notify never blocks;
// delivery is best effort and every failure is logged.
type Notifier struct {
	sender      Sender
	limiter     *rate.Limiter
	queue       chan note
	attempts    int
	retryDelay  time.Duration
	sendTimeout time.Duration
}

func NewNotifier(sender Sender, opts NotifierOptions) *Notifier {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Notifier{
		sender:      sender,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		queue:       make(chan note, opts.QueueSize),
		attempts:    opts.Attempts,
		retryDelay:  opts.RetryDelay,
		sendTimeout: opts.SendTimeout,
	}
}

func (n *Notifier) Notify(chatID int64, text string) {
	if chatID == 0 {
		slog.Warn("notification dropped", "reason", "no_chat", "text", text)
		return
	}
	select {
	case n.queue <- note{chatID: chatID, text: text}:
	default:
		slog.Error("notification dropped", "reason", "queue_full", "chat_id", chatID, "text", text)
	}
}

// Run drains the queue until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg note) {
	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
		lastErr = n.sender.SendMessage(sendCtx, msg.chatID, msg.text)
		cancel()
		if lastErr == nil {
			return
		}
		slog.Warn("notification attempt failed", "chat_id", msg.chatID, "attempt", attempt, "error", lastErr)
		if attempt < n.attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * n.retryDelay):
			}
		}
	}
	slog.Error("notification failed", "chat_id", msg.chatID, "attempts", n.attempts, "error", lastErr)
}
