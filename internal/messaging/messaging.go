// Package messaging abstracts the Telegram transport the scraper reads from.
//
// The orchestrator depends only on the Client interface; the concrete
// Telegram type (telegram.go) owns connection and authorization lifecycle.
package messaging

import (
	"context"
	"errors"

	"jobwire/scraper-service/internal/model"
)

// ErrAuthRequired is returned when the underlying account has no valid
// session yet. Callers redirect the operator to the code-verification flow
// instead of treating this as a per-channel failure.
var ErrAuthRequired = errors.New("messaging: authentication required")

// Channel is a resolved channel entity.
type Channel struct {
	ID         int64
	AccessHash int64
	Name       string // username without the leading @
}

// Client is the minimal surface the scrape orchestrator needs.
type Client interface {
	// Resolve looks up a channel by name (with or without a leading @).
	Resolve(ctx context.Context, name string) (Channel, error)
	// History fetches up to limit most recent text messages from ch,
	// newest first. Messages without text are omitted.
	History(ctx context.Context, ch Channel, limit int) ([]model.Message, error)
}
