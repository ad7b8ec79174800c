package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	coreaudit "github.com/mfvargas/fieldops/core/audit"
	"github.com/mfvargas/fieldops/core/model"
)

func sampleRecord(entity string, ts time.Time) coreaudit.Record {
	return coreaudit.Record{
		Timestamp: ts,
		ActorID:   uuid.New(),
		ActorRole: model.RoleUnit,
		Entity:    entity,
		EntityID:  uuid.New(),
		From:      "pending",
		To:        "accepted",
	}
}

func testStore(t *testing.T, s coreaudit.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.Append(ctx, sampleRecord("request", now.Add(-2*time.Hour))))
	require.NoError(t, s.Append(ctx, sampleRecord("request", now)))
	require.NoError(t, s.Append(ctx, sampleRecord("service", now)))

	all, err := s.Query(ctx, coreaudit.Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	recent, err := s.Query(ctx, coreaudit.Query{Start: now.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	services, err := s.Query(ctx, coreaudit.Query{Entity: "service"})
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.Equal(t, "service", services[0].Entity)

	require.NoError(t, s.Close())
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	testStore(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"), 5, 2, 1)
	require.NoError(t, err)
	testStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	testStore(t, s)
}

func TestFactory(t *testing.T) {
	s, err := New(Options{Backend: "none"})
	require.NoError(t, err)
	require.IsType(t, coreaudit.NopStore{}, s)

	s, err = New(Options{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "a.jsonl")})
	require.NoError(t, err)
	require.IsType(t, &JSONLStore{}, s)

	_, err = New(Options{Backend: "bogus"})
	require.Error(t, err)
}
