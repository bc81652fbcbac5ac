//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"release_watcher/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_seen_entries.up.sql"),
			filepath.Join(migrationsPath, "002_create_poll_state.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM seen_entries")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM poll_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestSeenStore_IsNew_UnknownEntry() {
	store := NewSeenStore(s.db)

	isNew, err := store.IsNew(s.ctx, "grafana", "v11.2.0")
	s.NoError(err)
	s.True(isNew)
}

func (s *PostgresIntegrationSuite) TestSeenStore_MarkNotified_ThenNotNew() {
	store := NewSeenStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := store.MarkNotified(s.ctx, "grafana", "v11.2.0", now)
	s.NoError(err)

	isNew, err := store.IsNew(s.ctx, "grafana", "v11.2.0")
	s.NoError(err)
	s.False(isNew)

	rec, err := store.Get(s.ctx, "grafana", "v11.2.0")
	s.NoError(err)
	s.Require().NotNil(rec)
	s.Equal("grafana", rec.FeedLabel)
	s.Equal("v11.2.0", rec.EntryID)
	s.WithinDuration(now, rec.NotifiedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestSeenStore_MarkNotified_Idempotent() {
	store := NewSeenStore(s.db)
	first := time.Now().Truncate(time.Microsecond)
	second := first.Add(time.Hour)

	err := store.MarkNotified(s.ctx, "grafana", "v11.2.0", first)
	s.NoError(err)

	// The second call must neither error nor overwrite the original record.
	err = store.MarkNotified(s.ctx, "grafana", "v11.2.0", second)
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM seen_entries WHERE feed_label = $1 AND entry_id = $2", "grafana", "v11.2.0")
	s.NoError(err)
	s.Equal(1, count)

	rec, err := store.Get(s.ctx, "grafana", "v11.2.0")
	s.NoError(err)
	s.Require().NotNil(rec)
	s.WithinDuration(first, rec.NotifiedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestSeenStore_FeedsDoNotShareRecords() {
	store := NewSeenStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := store.MarkNotified(s.ctx, "grafana", "v1.0", now)
	s.NoError(err)

	isNew, err := store.IsNew(s.ctx, "prometheus", "v1.0")
	s.NoError(err)
	s.True(isNew)
}

func (s *PostgresIntegrationSuite) TestSeenStore_Existing_ReturnsCorrectSubset() {
	store := NewSeenStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	for _, id := range []string{"v1.0", "v1.1"} {
		s.NoError(store.MarkNotified(s.ctx, "grafana", id, now))
	}

	existing, err := store.Existing(s.ctx, "grafana", []string{"v1.0", "v1.1", "v2.0"})
	s.NoError(err)
	s.Len(existing, 2)
	s.Contains(existing, "v1.0")
	s.Contains(existing, "v1.1")
	s.NotContains(existing, "v2.0")
}

func (s *PostgresIntegrationSuite) TestSeenStore_Existing_EmptyInput() {
	store := NewSeenStore(s.db)

	existing, err := store.Existing(s.ctx, "grafana", nil)
	s.NoError(err)
	s.Empty(existing)
}

func (s *PostgresIntegrationSuite) TestSeenStore_Get_MissingRecord() {
	store := NewSeenStore(s.db)

	rec, err := store.Get(s.ctx, "grafana", "missing")
	s.NoError(err)
	s.Nil(rec)
}

func (s *PostgresIntegrationSuite) TestPollStateStore_GetNew() {
	store := NewPollStateStore(s.db)

	state, err := store.Get(s.ctx, "new-feed")
	s.NoError(err)
	s.NotNil(state)
	s.Equal("new-feed", state.FeedLabel)
	s.True(state.LastPolledAt.IsZero())
	s.Equal(int64(0), state.TotalNotified)
}

func (s *PostgresIntegrationSuite) TestPollStateStore_UpdateAndGet() {
	store := NewPollStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.PollState{
		FeedLabel:     "grafana",
		LastPolledAt:  now,
		TotalNotified: 7,
	}
	err := store.Update(s.ctx, state)
	s.NoError(err)

	retrieved, err := store.Get(s.ctx, "grafana")
	s.NoError(err)
	s.Equal("grafana", retrieved.FeedLabel)
	s.Equal(int64(7), retrieved.TotalNotified)
	s.WithinDuration(now, retrieved.LastPolledAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestPollStateStore_UpdateExisting() {
	store := NewPollStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.PollState{
		FeedLabel:     "grafana",
		LastPolledAt:  now,
		TotalNotified: 7,
	}
	s.NoError(store.Update(s.ctx, state))

	state.LastPolledAt = now.Add(time.Hour)
	state.TotalNotified = 9
	s.NoError(store.Update(s.ctx, state))

	retrieved, err := store.Get(s.ctx, "grafana")
	s.NoError(err)
	s.Equal(int64(9), retrieved.TotalNotified)
}
