package command

import "strings"

type Kind string

const (
	Start   Kind = "/start"
	Run     Kind = "/run"
	Stop    Kind = "/stop"
	Balance Kind = "/balance"
	Stats   Kind = "/stats"
)

// Command is one operator instruction and the chat it came from.
type Command struct {
	Kind   Kind
	ChatID int64
}

// Parse matches the literal command text. Anything else yields no command.
func Parse(text string) (Kind, bool) {
	switch Kind(strings.TrimSpace(text)) {
	case Start:
		return Start, true
	case Run:
		return Run, true
	case Stop:
		return Stop, true
	case Balance:
		return Balance, true
	case Stats:
		return Stats, true
	default:
		return "", false
	}
}
