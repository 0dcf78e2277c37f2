package redis

import (
	"context"
	"testing"
	"time"

	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(id string, started time.Time) domain.StreamSession {
	return domain.StreamSession{
		ID:            id,
		Creator:       "podcaster",
		RatePerMinute: decimal.RequireFromString("0.6"),
		ContentID:     "ep-42",
		Metadata:      map[string]string{"title": "Episode 42", "type": "podcast"},
		StartTime:     started,
		TotalSent:     decimal.RequireFromString("0.3"),
		IsActive:      true,
	}
}

func TestSessionMirror_RoundTrip(t *testing.T) {
	client := setupTestClient(t)
	mirror := NewSessionMirror(client, time.Minute)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := testSession("s2", started.Add(time.Second))
	first := testSession("s1", started)

	require.NoError(t, mirror.RecordSession(ctx, domain.SessionStarted, second))
	require.NoError(t, mirror.RecordSession(ctx, domain.SessionTicked, first))

	sessions, err := mirror.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, "Episode 42", sessions[0].Title())
	assert.True(t, sessions[0].TotalSent.Equal(first.TotalSent))
	assert.True(t, sessions[0].StartTime.Equal(started))

	ttl, err := client.TTL(ctx, sessionKey("s1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestSessionMirror_PauseThenStop(t *testing.T) {
	client := setupTestClient(t)
	mirror := NewSessionMirror(client, time.Minute)
	ctx := context.Background()

	s := testSession("s1", time.Now().UTC())
	require.NoError(t, mirror.RecordSession(ctx, domain.SessionStarted, s))

	s.IsActive = false
	require.NoError(t, mirror.RecordSession(ctx, domain.SessionPaused, s))

	sessions, err := mirror.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].IsActive)

	require.NoError(t, mirror.RecordSession(ctx, domain.SessionStopped, s))

	sessions, err = mirror.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionMirror_PrunesExpiredEntries(t *testing.T) {
	client := setupTestClient(t)
	mirror := NewSessionMirror(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, mirror.RecordSession(ctx, domain.SessionStarted, testSession("gone", time.Now().UTC())))
	require.NoError(t, client.Del(ctx, sessionKey("gone")).Err())

	sessions, err := mirror.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	n, err := client.ZCard(ctx, sessionIndexKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
