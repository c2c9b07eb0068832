// Package chatstore keeps per-user conversation windows for the chatbot.
package chatstore

import (
	"context"

	model "github.com/okian/queryai/internal/domain/model"
)

// Store holds the most recent messages of each user. Implementations trim
// every conversation to their configured window on append.
type Store interface {
	Append(ctx context.Context, userID string, msgs ...model.ChatMessage) error
	History(ctx context.Context, userID string) ([]model.ChatMessage, error)
	// Clear removes a conversation and reports whether one existed.
	Clear(ctx context.Context, userID string) (bool, error)
	// Users returns the ids with a stored conversation, sorted.
	Users(ctx context.Context) ([]string, error)
	Close() error
}

const defaultWindow = 10

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	window int
}

// WithWindow sets how many messages are kept per user. Odd sizes round down
// to whole exchanges, never below one exchange, so a trimmed history still opens with
// the user's message.
func WithWindow(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = max(n-n%2, 2)
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{window: defaultWindow}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
