package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"release_watcher/internal/domain"
)

// Config holds feed client configuration.
type Config struct {
	Timeout time.Duration
}

// Client fetches release feeds (RSS or Atom) over HTTP.
type Client struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	logger     *slog.Logger
}

// New creates a new feed client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		parser: gofeed.NewParser(),
		logger: logger,
	}
}

// Fetch retrieves and parses one feed. Any network or parse failure is
// returned whole; the caller never sees a silently truncated entry list.
func (c *Client) Fetch(ctx context.Context, source domain.FeedSource) ([]domain.ReleaseEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml")
	req.Header.Set("User-Agent", "ReleaseWatcher/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return c.transform(source, feed.Items), nil
}

func (c *Client) transform(source domain.FeedSource, items []*gofeed.Item) []domain.ReleaseEntry {
	entries := make([]domain.ReleaseEntry, 0, len(items))

	for _, item := range items {
		id := item.GUID
		if id == "" {
			// Titles repeat across pre-releases, so the link is the
			// only acceptable fallback identifier.
			id = item.Link
		}
		if id == "" {
			c.logger.Warn("skipping entry without identifier",
				"feed", source.Label,
				"title", item.Title,
			)
			continue
		}

		publishedAt := item.PublishedParsed
		if publishedAt == nil {
			publishedAt = item.UpdatedParsed
		}
		if publishedAt == nil {
			c.logger.Warn("skipping entry without timestamp",
				"feed", source.Label,
				"entry_id", id,
			)
			continue
		}

		entries = append(entries, domain.ReleaseEntry{
			ID:          id,
			Title:       item.Title,
			URL:         item.Link,
			PublishedAt: *publishedAt,
		})
	}

	return entries
}
