package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

// GetOrCreateRecipient lazily registers a contact address. Concurrent
// callers for the same address race on the insert; the loser reads the
// winner's row.
func (s *SQLiteDB) GetOrCreateRecipient(ctx context.Context, address, newID string, now time.Time) (*models.Recipient, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients (id, address, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (address) DO NOTHING`,
		newID, address, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("error inserting recipient: %w", err)
	}

	var r models.Recipient
	err = s.db.QueryRowContext(ctx,
		`SELECT id, address, created_at FROM recipients WHERE address = ?`, address).
		Scan(&r.ID, &r.Address, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error fetching recipient: %w", err)
	}
	return &r, nil
}
