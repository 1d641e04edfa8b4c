package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantrelay/internal/telegram"
)

// Source returns updates with id >= offset, long-polling up to timeout.
type Source interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Sink receives commands in the order they were sent.
type Sink func(ctx context.Context, cmd Command) error

// Adapter turns the chat update stream into commands. The cursor only moves
// forward, and only past batches that were fetched successfully.
type Adapter struct {
	source  Source
	timeout time.Duration
	offset  int64
}

func NewAdapter(source Source, pollTimeout time.Duration) *Adapter {
	return &Adapter{source: source, timeout: pollTimeout}
}

func (a *Adapter) Offset() int64 {
	return a.offset
}

// Poll fetches one batch. Every update in a non-empty batch advances the
// cursor, including updates that carry no command.
func (a *Adapter) Poll(ctx context.Context) ([]Command, error) {
	updates, err := a.source.GetUpdates(ctx, a.offset, a.timeout)
	if err != nil {
		return nil, fmt.Errorf("poll updates at offset %d: %w", a.offset, err)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	next := a.offset
	commands := make([]Command, 0, len(updates))
	for _, update := range updates {
		if update.UpdateID+1 > next {
			next = update.UpdateID + 1
		}
		if update.Message == nil {
			continue
		}
		kind, ok := Parse(update.Message.Text)
		if !ok {
			slog.Debug("chat message ignored", "update_id", update.UpdateID)
			continue
		}
		commands = append(commands, Command{Kind: kind, ChatID: update.Message.Chat.ID})
	}
	a.offset = next
	return commands, nil
}

// Run polls until ctx is done or the source fails; the caller restarts it.
func (a *Adapter) Run(ctx context.Context, sink Sink) error {
	for {
		commands, err := a.Poll(ctx)
		if err != nil {
			return err
		}
		for _, cmd := range commands {
			slog.Info("command received", "command", cmd.Kind, "chat_id", cmd.ChatID)
			if err := sink(ctx, cmd); err != nil {
				return fmt.Errorf("deliver %s: %w", cmd.Kind, err)
			}
		}
	}
}
