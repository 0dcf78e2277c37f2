package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
)

const maxListLimit = 200

// ReceiptRepo archives boost receipts and stopped streaming sessions.
// It implements the boost and session recorder and archive interfaces.
type ReceiptRepo struct {
	pool *pgxpool.Pool
}

var (
	_ domain.BoostRecorder   = (*ReceiptRepo)(nil)
	_ domain.BoostArchive    = (*ReceiptRepo)(nil)
	_ domain.SessionRecorder = (*ReceiptRepo)(nil)
	_ domain.SessionArchive  = (*ReceiptRepo)(nil)
)

func NewReceiptRepo(pool *pgxpool.Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

// SaveBoost is idempotent on the boost id.
func (r *ReceiptRepo) SaveBoost(ctx context.Context, b domain.Boost) error {
	_, err := r.pool.Exec(ctx, `
		insert into boosts (id, creator, amount, message, content_id, tx_id, created_at)
		values ($1::text::uuid, $2, $3::text::numeric, $4, $5, $6, $7)
		on conflict (id) do nothing`,
		b.ID, b.Creator, b.Amount.String(), b.Message, b.ContentID, b.TxID, b.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save boost %s: %w", b.ID, err)
	}
	return nil
}

// ListBoosts returns archived boosts newest first. An empty creator lists
// boosts to every creator.
func (r *ReceiptRepo) ListBoosts(ctx context.Context, creator string, limit int) ([]domain.Boost, error) {
	limit = clampLimit(limit)

	rows, err := r.pool.Query(ctx, `
		select id::text, creator, amount::text, message, content_id, tx_id, created_at
		from boosts
		where $1 = '' or creator = $1
		order by created_at desc, id
		limit $2`,
		creator, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list boosts: %w", err)
	}

	boosts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Boost, error) {
		var (
			b      domain.Boost
			amount string
		)
		if err := row.Scan(&b.ID, &b.Creator, &amount, &b.Message, &b.ContentID, &b.TxID, &b.Timestamp); err != nil {
			return domain.Boost{}, err
		}
		var err error
		b.Amount, err = decimal.NewFromString(amount)
		b.Timestamp = b.Timestamp.UTC()
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan boosts: %w", err)
	}
	return boosts, nil
}

// RecordSession archives a session when it stops; other events are ignored.
func (r *ReceiptRepo) RecordSession(ctx context.Context, event domain.SessionEvent, s domain.StreamSession) error {
	if event != domain.SessionStopped {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		insert into stream_sessions (id, creator, rate_per_minute, content_id, title, started_at, stopped_at, total_sent)
		values ($1::text::uuid, $2, $3::text::numeric, $4, $5, $6, now(), $7::text::numeric)
		on conflict (id) do update
		set total_sent = excluded.total_sent, stopped_at = excluded.stopped_at`,
		s.ID, s.Creator, s.RatePerMinute.String(), s.ContentID, s.Title(), s.StartTime, s.TotalSent.String())
	if err != nil {
		return fmt.Errorf("failed to archive session %s: %w", s.ID, err)
	}
	return nil
}

// ListSessions returns archived sessions, most recently started first.
func (r *ReceiptRepo) ListSessions(ctx context.Context, creator string, limit int) ([]domain.ArchivedSession, error) {
	limit = clampLimit(limit)

	rows, err := r.pool.Query(ctx, `
		select id::text, creator, rate_per_minute::text, content_id, title, started_at, stopped_at, total_sent::text
		from stream_sessions
		where $1 = '' or creator = $1
		order by started_at desc, id
		limit $2`,
		creator, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ArchivedSession, error) {
		var (
			s           domain.ArchivedSession
			rate, total string
		)
		if err := row.Scan(&s.ID, &s.Creator, &rate, &s.ContentID, &s.Title, &s.StartedAt, &s.StoppedAt, &total); err != nil {
			return domain.ArchivedSession{}, err
		}
		var err error
		if s.RatePerMinute, err = decimal.NewFromString(rate); err != nil {
			return domain.ArchivedSession{}, err
		}
		if s.TotalSent, err = decimal.NewFromString(total); err != nil {
			return domain.ArchivedSession{}, err
		}
		s.StartedAt, s.StoppedAt = s.StartedAt.UTC(), s.StoppedAt.UTC()
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sessions, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
