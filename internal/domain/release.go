package domain

import "time"

// FeedSource is one watched project, defined by configuration.
type FeedSource struct {
	Label string // human-readable name used in notifications
	URL   string // feed endpoint
}

// ReleaseEntry is one item read from a feed. It lives only for the
// duration of one poll cycle; the seen-entry store is the durable side.
type ReleaseEntry struct {
	ID          string // the feed's item identifier, not the title
	Title       string
	URL         string
	PublishedAt time.Time
}

// SeenRecord is the persisted fact "entry ID of feed Label has been
// notified". Written only after the notification succeeded.
type SeenRecord struct {
	FeedLabel  string    `db:"feed_label"`
	EntryID    string    `db:"entry_id"`
	NotifiedAt time.Time `db:"notified_at"`
}

// PollState tracks per-feed operational state across cycles.
type PollState struct {
	ID            int64     `db:"id"`
	FeedLabel     string    `db:"feed_label"`
	LastPolledAt  time.Time `db:"last_polled_at"`
	TotalNotified int64     `db:"total_notified"`
}
