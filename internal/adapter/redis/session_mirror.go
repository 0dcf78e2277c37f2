package redis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	sessionIndexKey = "stream_sessions"

	// Mirrors of sessions whose process died expire on their own.
	defaultSessionTTL = 10 * time.Minute
)

// SessionMirror publishes live session snapshots to Redis so other processes
// and operators can see what this instance is paying. It implements
// domain.SessionRecorder; the in-process manager stays authoritative.
type SessionMirror struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

var _ domain.SessionRecorder = (*SessionMirror)(nil)

func NewSessionMirror(rdb goredis.Cmdable, ttl time.Duration) *SessionMirror {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionMirror{rdb: rdb, ttl: ttl}
}

func (m *SessionMirror) RecordSession(ctx context.Context, event domain.SessionEvent, s domain.StreamSession) error {
	key := sessionKey(s.ID)

	if event == domain.SessionStopped {
		_, err := m.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, sessionIndexKey, s.ID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to remove mirrored session %s: %w", s.ID, err)
		}
		return nil
	}

	_, err := m.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"creator":         s.Creator,
			"rate_per_minute": s.RatePerMinute.String(),
			"content_id":      s.ContentID,
			"title":           s.Title(),
			"start_time":      s.StartTime.UTC().Format(time.RFC3339Nano),
			"total_sent":      s.TotalSent.String(),
			"is_active":       strconv.FormatBool(s.IsActive),
			"last_event":      string(event),
		})
		pipe.Expire(ctx, key, m.ttl)
		pipe.ZAdd(ctx, sessionIndexKey, goredis.Z{Score: float64(s.StartTime.UnixMilli()), Member: s.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror session %s: %w", s.ID, err)
	}
	return nil
}

// List returns all mirrored sessions, oldest first. Index entries whose hash
// has expired are pruned on the way.
func (m *SessionMirror) List(ctx context.Context) ([]domain.StreamSession, error) {
	ids, err := m.rdb.ZRange(ctx, sessionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list mirrored sessions: %w", err)
	}

	sessions := make([]domain.StreamSession, 0, len(ids))
	var stale []any
	for _, id := range ids {
		fields, err := m.rdb.HGetAll(ctx, sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read mirrored session %s: %w", id, err)
		}
		if len(fields) == 0 {
			stale = append(stale, id)
			continue
		}
		s, err := parseSession(id, fields)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed mirrored session", "session_id", id, "error", err)
			continue
		}
		sessions = append(sessions, s)
	}

	if len(stale) > 0 {
		if err := m.rdb.ZRem(ctx, sessionIndexKey, stale...).Err(); err != nil {
			slog.WarnContext(ctx, "Failed to prune session index", "count", len(stale), "error", err)
		}
	}

	slices.SortStableFunc(sessions, func(a, b domain.StreamSession) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return sessions, nil
}

func parseSession(id string, f map[string]string) (domain.StreamSession, error) {
	rate, err := decimal.NewFromString(f["rate_per_minute"])
	if err != nil {
		return domain.StreamSession{}, fmt.Errorf("rate_per_minute: %w", err)
	}
	total, err := decimal.NewFromString(f["total_sent"])
	if err != nil {
		return domain.StreamSession{}, fmt.Errorf("total_sent: %w", err)
	}
	started, err := time.Parse(time.RFC3339Nano, f["start_time"])
	if err != nil {
		return domain.StreamSession{}, fmt.Errorf("start_time: %w", err)
	}

	s := domain.StreamSession{
		ID:            id,
		Creator:       f["creator"],
		RatePerMinute: rate,
		ContentID:     f["content_id"],
		StartTime:     started,
		TotalSent:     total,
		IsActive:      f["is_active"] == "true",
	}
	if title := f["title"]; title != "" {
		s.Metadata = map[string]string{"title": title}
	}
	return s, nil
}

func sessionKey(id string) string {
	return "stream_session:" + id
}
