package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"release_watcher/internal/domain"
)

type Source interface {
	Fetch(ctx context.Context, source domain.FeedSource) ([]domain.ReleaseEntry, error)
}

type SeenStore interface {
	Existing(ctx context.Context, feedLabel string, ids []string) (map[string]struct{}, error)
	MarkNotified(ctx context.Context, feedLabel, entryID string, notifiedAt time.Time) error
}

type PollStateStore interface {
	Get(ctx context.Context, feedLabel string) (*domain.PollState, error)
	Update(ctx context.Context, state *domain.PollState) error
}

type Notifier interface {
	Notify(ctx context.Context, source domain.FeedSource, entry domain.ReleaseEntry) error
}
