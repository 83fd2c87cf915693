// Package history persists generation results and recently used prompts.
package history

import (
	"context"
	"errors"
	"time"

	"studio/internal/domain"
)

var ErrStoreClosed = errors.New("history: store is not open")

// Store is the persistence port. Callers Open it before use and Close it
// when done; every other method returns ErrStoreClosed outside that window.
// Lists are ordered newest first.
type Store interface {
	Open(ctx context.Context) error
	Close() error

	PutItems(ctx context.Context, items []domain.HistoryItem) error
	ListItems(ctx context.Context) ([]domain.HistoryItem, error)
	DeleteItem(ctx context.Context, id string) error
	ClearItems(ctx context.Context) error

	PutPrompt(ctx context.Context, prompt string, usedAt time.Time) error
	ListPrompts(ctx context.Context) ([]string, error)
	TrimPrompts(ctx context.Context, keep int) error
	ClearPrompts(ctx context.Context) error
}
