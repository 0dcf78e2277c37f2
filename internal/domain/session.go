package domain

import (
	"context"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// TicksPerMinute is how many transfers a streaming session emits per minute
// of playback. The per-tick amount is RatePerMinute / TicksPerMinute.
const TicksPerMinute = 6

// StreamSession is a point-in-time view of a streaming payment session.
// Metadata is display-only; the manager never interprets it beyond the title.
type StreamSession struct {
	ID            string            `json:"id"`
	Creator       string            `json:"creator"`
	RatePerMinute decimal.Decimal   `json:"rate_per_minute"`
	ContentID     string            `json:"content_id"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	StartTime     time.Time         `json:"start_time"`
	TotalSent     decimal.Decimal   `json:"total_sent"`
	IsActive      bool              `json:"is_active"`
}

// Clone returns a deep copy safe to hand out of a lock.
func (s StreamSession) Clone() StreamSession {
	s.Metadata = maps.Clone(s.Metadata)
	return s
}

// Title is the display title embedded in stream memos.
func (s StreamSession) Title() string {
	return s.Metadata["title"]
}

// StartStreamRequest bundles the parameters for opening a streaming session.
type StartStreamRequest struct {
	Creator       string
	RatePerMinute decimal.Decimal
	ContentID     string
	Metadata      map[string]string
}

// SessionEvent is what a SessionRecorder observes.
type SessionEvent string

const (
	SessionStarted SessionEvent = "started"
	SessionTicked  SessionEvent = "ticked"
	SessionPaused  SessionEvent = "paused"
	SessionResumed SessionEvent = "resumed"
	SessionStopped SessionEvent = "stopped"
)

// SessionRecorder receives session snapshots after every state change.
// Implementations must not block for long; failures are logged by the caller.
type SessionRecorder interface {
	RecordSession(ctx context.Context, event SessionEvent, session StreamSession) error
}

// ArchivedSession is a stopped streaming session as kept in the receipt
// archive.
type ArchivedSession struct {
	ID            string          `json:"id"`
	Creator       string          `json:"creator"`
	RatePerMinute decimal.Decimal `json:"rate_per_minute"`
	ContentID     string          `json:"content_id"`
	Title         string          `json:"title"`
	StartedAt     time.Time       `json:"started_at"`
	StoppedAt     time.Time       `json:"stopped_at"`
	TotalSent     decimal.Decimal `json:"total_sent"`
}

// SessionArchive lists stopped sessions, most recently started first.
type SessionArchive interface {
	ListSessions(ctx context.Context, creator string, limit int) ([]ArchivedSession, error)
}
