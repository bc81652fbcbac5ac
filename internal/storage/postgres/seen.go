package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"release_watcher/internal/domain"
)

// SeenStore is the durable record of which entries have already been
// notified. The (feed_label, entry_id) primary key makes MarkNotified
// idempotent and the single-statement insert makes it crash-safe: a
// crash between the membership check and the mark can only re-notify,
// never lose a release.
type SeenStore struct {
	db *sqlx.DB
}

func NewSeenStore(db *sqlx.DB) *SeenStore {
	return &SeenStore{db: db}
}

// IsNew reports whether no SeenRecord exists for the pair.
func (s *SeenStore) IsNew(ctx context.Context, feedLabel, entryID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM seen_entries WHERE feed_label = $1 AND entry_id = $2)",
		feedLabel, entryID,
	)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Existing returns the subset of ids already recorded for the feed.
func (s *SeenStore) Existing(ctx context.Context, feedLabel string, ids []string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT entry_id FROM seen_entries WHERE feed_label = $1 AND entry_id = ANY($2)`

	rows, err := s.db.QueryContext(ctx, query, feedLabel, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entryID string
		if err := rows.Scan(&entryID); err != nil {
			return nil, err
		}
		result[entryID] = struct{}{}
	}

	return result, rows.Err()
}

// MarkNotified records that the entry has been notified. Calling it
// twice for the same pair is a no-op on the second call.
func (s *SeenStore) MarkNotified(ctx context.Context, feedLabel, entryID string, notifiedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_entries (feed_label, entry_id, notified_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (feed_label, entry_id) DO NOTHING`,
		feedLabel, entryID, notifiedAt,
	)
	return err
}

// Get returns the SeenRecord for the pair, or nil if none exists.
func (s *SeenStore) Get(ctx context.Context, feedLabel, entryID string) (*domain.SeenRecord, error) {
	var rec domain.SeenRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT feed_label, entry_id, notified_at FROM seen_entries WHERE feed_label = $1 AND entry_id = $2",
		feedLabel, entryID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
