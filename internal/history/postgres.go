package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// PostgresStore keeps history in the history_items and prompt_history
// tables. Open creates them when missing.
type PostgresStore struct {
	sql  infra.SQLExecutor
	mu   sync.RWMutex
	open bool
}

func NewPostgresStore(sql infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{sql: sql}
}

func (s *PostgresStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QCreateHistorySchema); err != nil {
		return fmt.Errorf("history: create schema: %w", err)
	}
	s.open = true
	return nil
}

// Close marks the store closed. The pool is owned by the caller.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *PostgresStore) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return ErrStoreClosed
	}
	return nil
}

func (s *PostgresStore) PutItems(ctx context.Context, items []domain.HistoryItem) error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, it := range items {
		if _, err := s.sql.Exec(ctx, sqlinline.QUpsertHistoryItem, it.ID, string(it.Type), it.Data, it.Mode, it.Prompt, it.Timestamp); err != nil {
			return fmt.Errorf("history: put item %s: %w", it.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]domain.HistoryItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListHistoryItems)
	if err != nil {
		return nil, fmt.Errorf("history: list items: %w", err)
	}
	defer rows.Close()
	var out []domain.HistoryItem
	for rows.Next() {
		var (
			it   domain.HistoryItem
			kind string
		)
		if err := rows.Scan(&it.ID, &kind, &it.Data, &it.Mode, &it.Prompt, &it.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan item: %w", err)
		}
		it.Type = domain.HistoryItemType(kind)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteHistoryItem, id)
	if err != nil {
		return fmt.Errorf("history: delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ClearItems(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sql.Exec(ctx, sqlinline.QClearHistoryItems)
	return err
}

func (s *PostgresStore) PutPrompt(ctx context.Context, prompt string, usedAt time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertPrompt, prompt, usedAt)
	return err
}

func (s *PostgresStore) ListPrompts(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListPrompts)
	if err != nil {
		return nil, fmt.Errorf("history: list prompts: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("history: scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TrimPrompts(ctx context.Context, keep int) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sql.Exec(ctx, sqlinline.QTrimPrompts, keep)
	return err
}

func (s *PostgresStore) ClearPrompts(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sql.Exec(ctx, sqlinline.QClearPrompts)
	return err
}

var _ Store = (*PostgresStore)(nil)
