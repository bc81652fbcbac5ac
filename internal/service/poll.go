package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"release_watcher/internal/domain"
	"release_watcher/internal/notify"
)

// PollService runs one poll cycle: for each configured feed it fetches
// entries, filters out already-notified ones, dispatches the rest oldest
// first, and records each entry as seen only after delivery succeeded.
type PollService struct {
	feeds     []domain.FeedSource
	source    Source
	seen      SeenStore
	pollState PollStateStore
	notifier  Notifier
	logger    *slog.Logger
}

func NewPollService(
	feeds []domain.FeedSource,
	source Source,
	seen SeenStore,
	pollState PollStateStore,
	notifier Notifier,
	logger *slog.Logger,
) *PollService {
	return &PollService{
		feeds:     feeds,
		source:    source,
		seen:      seen,
		pollState: pollState,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run processes all configured feeds strictly sequentially. A feed that
// cannot be fetched is skipped for this cycle; a store failure or a
// permanent webhook rejection aborts the whole run.
func (s *PollService) Run(ctx context.Context) (*domain.CycleStats, error) {
	startTime := time.Now()
	stats := &domain.CycleStats{Sources: len(s.feeds)}

	s.logger.Info("starting poll cycle", "feeds", len(s.feeds))

	for _, feed := range s.feeds {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if err := s.pollFeed(ctx, feed, stats); err != nil {
			return stats, fmt.Errorf("feed %s: %w", feed.Label, err)
		}
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("poll cycle completed",
		"sources", stats.Sources,
		"skipped_sources", stats.SkippedSources,
		"fetched", stats.Fetched,
		"new", stats.New,
		"notified", stats.Notified,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *PollService) pollFeed(ctx context.Context, feed domain.FeedSource, stats *domain.CycleStats) error {
	logger := s.logger.With("feed", feed.Label)

	entries, err := s.source.Fetch(ctx, feed)
	if err != nil {
		// Source-scoped: the feed is unavailable this cycle, the next
		// scheduled run will see its entries again.
		logger.Warn("feed unavailable, skipping this cycle", "error", err)
		stats.SkippedSources++
		return nil
	}
	stats.Fetched += len(entries)

	fresh, err := s.filterNew(ctx, feed, entries)
	if err != nil {
		return fmt.Errorf("filter entries: %w", err)
	}
	stats.New += len(fresh)

	logger.Info("fetched feed", "entries", len(entries), "new", len(fresh))

	// Older missed releases notify before newer ones.
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].PublishedAt.Before(fresh[j].PublishedAt)
	})

	notified, err := s.dispatch(ctx, feed, fresh, logger)
	stats.Notified += notified
	if err != nil {
		return err
	}

	if err := s.updatePollState(ctx, feed, notified); err != nil {
		return fmt.Errorf("update poll state: %w", err)
	}

	return nil
}

// dispatch notifies entries in order, marking each as seen strictly
// after its delivery was confirmed. It returns how many entries were
// notified and marked.
func (s *PollService) dispatch(ctx context.Context, feed domain.FeedSource, entries []domain.ReleaseEntry, logger *slog.Logger) (int, error) {
	notified := 0

	for _, entry := range entries {
		if err := s.notifier.Notify(ctx, feed, entry); err != nil {
			var perm *notify.PermanentError
			if errors.As(err, &perm) {
				// Configuration is broken; further attempts would waste
				// effort and could mis-order notifications.
				return notified, fmt.Errorf("notify entry %s: %w", entry.ID, err)
			}

			// Transient: remaining entries stay unseen and keep their
			// order for the next cycle.
			logger.Warn("delivery failed, deferring remaining entries to next cycle",
				"entry_id", entry.ID,
				"remaining", len(entries)-notified,
				"error", err,
			)
			return notified, nil
		}

		if err := s.seen.MarkNotified(ctx, feed.Label, entry.ID, time.Now().UTC()); err != nil {
			return notified, fmt.Errorf("mark notified %s: %w", entry.ID, err)
		}
		notified++
	}

	return notified, nil
}

func (s *PollService) filterNew(ctx context.Context, feed domain.FeedSource, entries []domain.ReleaseEntry) ([]domain.ReleaseEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	existing, err := s.seen.Existing(ctx, feed.Label, ids)
	if err != nil {
		return nil, err
	}

	var fresh []domain.ReleaseEntry
	for _, entry := range entries {
		if _, seen := existing[entry.ID]; !seen {
			fresh = append(fresh, entry)
		}
	}

	return fresh, nil
}

func (s *PollService) updatePollState(ctx context.Context, feed domain.FeedSource, notified int) error {
	state, err := s.pollState.Get(ctx, feed.Label)
	if err != nil {
		return err
	}

	state.FeedLabel = feed.Label
	state.LastPolledAt = time.Now()
	state.TotalNotified += int64(notified)

	return s.pollState.Update(ctx, state)
}
