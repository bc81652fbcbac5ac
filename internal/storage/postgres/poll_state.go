package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"release_watcher/internal/domain"
)

type PollStateStore struct {
	db *sqlx.DB
}

func NewPollStateStore(db *sqlx.DB) *PollStateStore {
	return &PollStateStore{db: db}
}

func (s *PollStateStore) Get(ctx context.Context, feedLabel string) (*domain.PollState, error) {
	var state domain.PollState
	query := `
		SELECT id, feed_label, last_polled_at, total_notified
		FROM poll_state
		WHERE feed_label = $1`

	err := s.db.GetContext(ctx, &state, query, feedLabel)
	if err == sql.ErrNoRows {
		// Return empty state for feeds polled for the first time
		return &domain.PollState{
			FeedLabel:     feedLabel,
			LastPolledAt:  time.Time{},
			TotalNotified: 0,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *PollStateStore) Update(ctx context.Context, state *domain.PollState) error {
	query := `
		INSERT INTO poll_state (feed_label, last_polled_at, total_notified)
		VALUES ($1, $2, $3)
		ON CONFLICT (feed_label) DO UPDATE SET
			last_polled_at = EXCLUDED.last_polled_at,
			total_notified = EXCLUDED.total_notified`

	_, err := s.db.ExecContext(ctx, query,
		state.FeedLabel,
		state.LastPolledAt,
		state.TotalNotified,
	)
	return err
}
