//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tellus/internal/cache/store"
	"tellus/internal/domain"
	"tellus/pkg/platform/sentinel"
	"tellus/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgresStore(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "indicator_cache"))
}

func (s *PostgresStoreSuite) entry(fp string, year int) *store.Entry {
	return &store.Entry{
		Fingerprint: fp,
		Payload: []domain.Observation{
			{Country: "DEU", Year: year, Indicator: "SP.POP.TOTL", Value: domain.Float(83e6), Source: "worldbank"},
		},
		FetchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TTL:       24 * time.Hour,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	want := s.entry("fp-pg-1", 2020)
	s.Require().NoError(s.store.Put(ctx, want))

	got, err := s.store.Get(ctx, "fp-pg-1")
	s.Require().NoError(err)
	s.Equal(want.Payload, got.Payload)
	s.True(want.FetchedAt.Equal(got.FetchedAt))
	s.Equal(want.TTL, got.TTL)
}

func (s *PostgresStoreSuite) TestGetMiss() {
	_, err := s.store.Get(context.Background(), "absent")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentPut verifies that concurrent upserts on the same fingerprint
// end in one complete entry, never a partial mix of two writes.
func (s *PostgresStoreSuite) TestConcurrentPut() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(year int) {
			defer wg.Done()
			e := s.entry("fp-pg-contended", year)
			s.Require().NoError(s.store.Put(ctx, e))
		}(2000 + i)
	}
	wg.Wait()

	got, err := s.store.Get(ctx, "fp-pg-contended")
	s.Require().NoError(err)
	s.Len(got.Payload, 1)
	s.GreaterOrEqual(got.Payload[0].Year, 2000)
	s.Less(got.Payload[0].Year, 2000+goroutines)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, s.entry("fp-pg-2", 2021)))
	s.Require().NoError(s.store.Delete(ctx, "fp-pg-2"))

	_, err := s.store.Get(ctx, "fp-pg-2")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
