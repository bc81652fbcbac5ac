package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"release_watcher/internal/domain"
)

// Config holds webhook notifier configuration.
type Config struct {
	URL            string
	Secret         string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Lark delivers release notifications to a Lark custom-bot webhook.
type Lark struct {
	httpClient     *http.Client
	url            string
	secret         string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new Lark webhook notifier.
func New(cfg Config, logger *slog.Logger) *Lark {
	return &Lark{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:            cfg.URL,
		secret:         cfg.Secret,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger,
	}
}

// PermanentError marks a webhook rejection that retrying cannot fix:
// a malformed payload or bad credentials. The cycle aborts on it.
type PermanentError struct {
	Status int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("webhook rejected request: status %d", e.Status)
}

type message struct {
	Timestamp string `json:"timestamp,omitempty"`
	Sign      string `json:"sign,omitempty"`
	MsgType   string `json:"msg_type"`
	Card      card   `json:"card"`
}

type card struct {
	Config   cardConfig    `json:"config"`
	Elements []cardElement `json:"elements"`
}

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type cardElement struct {
	Tag     string       `json:"tag"`
	Text    *cardText    `json:"text,omitempty"`
	Actions []cardAction `json:"actions,omitempty"`
}

type cardText struct {
	Content string `json:"content"`
	Tag     string `json:"tag"`
}

type cardAction struct {
	Tag  string   `json:"tag"`
	Text cardText `json:"text"`
	Type string   `json:"type"`
	URL  string   `json:"url"`
}

// Notify delivers one release notification, retrying transient failures
// with bounded exponential backoff. Exactly one outbound call per attempt.
func (l *Lark) Notify(ctx context.Context, source domain.FeedSource, entry domain.ReleaseEntry) error {
	var err error

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err = l.send(ctx, source, entry)
		if err == nil {
			l.logger.Info("notification sent",
				"feed", source.Label,
				"entry_id", entry.ID,
				"attempt", attempt,
			)
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return err
		}

		if attempt == l.maxAttempts {
			break
		}

		backoff := l.calculateBackoff(attempt)
		l.logger.Warn("webhook delivery failed, retrying",
			"feed", source.Label,
			"entry_id", entry.ID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", l.maxAttempts, err)
}

func (l *Lark) send(ctx context.Context, source domain.FeedSource, entry domain.ReleaseEntry) error {
	body, err := json.Marshal(l.buildMessage(source, entry, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PermanentError{Status: resp.StatusCode}
	default:
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
}

func (l *Lark) buildMessage(source domain.FeedSource, entry domain.ReleaseEntry, now time.Time) message {
	content := fmt.Sprintf(
		"**Project:** %s\n\n**New Release:** %s\n\n**Updated:** %s\n\n[View Release](%s)",
		source.Label,
		entry.Title,
		entry.PublishedAt.UTC().Format(time.RFC3339),
		entry.URL,
	)

	msg := message{
		MsgType: "interactive",
		Card: card{
			Config: cardConfig{WideScreenMode: true},
			Elements: []cardElement{
				{
					Tag:  "div",
					Text: &cardText{Content: content, Tag: "lark_md"},
				},
				{Tag: "hr"},
				{
					Tag: "action",
					Actions: []cardAction{
						{
							Tag:  "button",
							Text: cardText{Content: "Open Release", Tag: "plain_text"},
							Type: "primary",
							URL:  entry.URL,
						},
					},
				},
			},
		},
	}

	if l.secret != "" {
		ts := fmt.Sprintf("%d", now.Unix())
		msg.Timestamp = ts
		msg.Sign = sign(l.secret, ts)
	}

	return msg
}

// sign computes the Lark custom-bot signature: HMAC-SHA256 over an empty
// message, keyed by "<timestamp>\n<secret>", base64-encoded.
func sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(timestamp+"\n"+secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (l *Lark) calculateBackoff(attempt int) time.Duration {
	backoff := l.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > l.maxBackoff {
		backoff = l.maxBackoff
	}
	return backoff
}
