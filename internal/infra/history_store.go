package infra

import (
	"context"
	"time"

	"github.com/eliteGoblin/focusd/intentd/internal/domain"
)

// --- domain.HistoryRepository implementation ---

// RecordEntered upserts the history row for text, bumping times-entered.
func (s *Store) RecordEntered(ctx context.Context, text string) error {
	return s.upsertHistory(ctx, text, "times_entered")
}

// RecordSelected upserts the history row for text, bumping times-selected.
func (s *Store) RecordSelected(ctx context.Context, text string) error {
	return s.upsertHistory(ctx, text, "times_selected")
}

func (s *Store) upsertHistory(ctx context.Context, text, column string) error {
	now := time.Now().Unix()
	// column is one of two fixed names, never user input.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intention_history (text, `+column+`, first_entered_at, last_used_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(text) DO UPDATE SET
			`+column+` = `+column+` + 1,
			last_used_at = excluded.last_used_at`,
		text, now, now)
	return err
}

// RecentHistory returns history items by last use, newest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]domain.IntentionHistoryItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT text, times_entered, times_selected, first_entered_at, last_used_at
		FROM intention_history ORDER BY last_used_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.IntentionHistoryItem
	for rows.Next() {
		var it domain.IntentionHistoryItem
		var first, last int64
		if err := rows.Scan(&it.Text, &it.TimesEntered, &it.TimesSelected, &first, &last); err != nil {
			return nil, err
		}
		it.FirstEnteredAt = time.Unix(first, 0)
		it.LastUsedAt = time.Unix(last, 0)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Ensure Store implements domain.HistoryRepository.
var _ domain.HistoryRepository = (*Store)(nil)
