package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/pscheid92/peakstream/internal/memo"
	"github.com/shopspring/decimal"
)

const (
	DefaultEarningsWindowDays = 7
	DefaultSpendingWindowDays = 30

	defaultHistoryLimit = 500
	averagePrecision    = 8
)

type EarningsConfig struct {
	Payer        string
	HistoryLimit int
}

// EarningsService reconstructs value-for-value flows from ledger history.
// Nothing is cached; every call re-reads history.
type EarningsService struct {
	ledger domain.Ledger
	clock  clockwork.Clock
	cfg    EarningsConfig
}

func NewEarningsService(ledger domain.Ledger, clock clockwork.Clock, cfg EarningsConfig) *EarningsService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &EarningsService{ledger: ledger, clock: clock, cfg: cfg}
}

// CreatorEarnings sums the creator's tagged incoming transfers inside the
// last windowDays days. Transactions counts every incoming transfer in the
// window, tagged or not. Boost records are newest first, at most ten.
func (s *EarningsService) CreatorEarnings(ctx context.Context, creator string, windowDays int) (domain.EarningsSummary, error) {
	if !domain.ValidAccountName(creator) {
		return domain.EarningsSummary{}, fmt.Errorf("%w: %q", domain.ErrInvalidAccount, creator)
	}
	if windowDays < 1 {
		return domain.EarningsSummary{}, fmt.Errorf("%w: got %d", domain.ErrInvalidWindow, windowDays)
	}

	history, err := s.ledger.History(ctx, creator, s.cfg.HistoryLimit)
	if err != nil {
		return domain.EarningsSummary{}, fmt.Errorf("failed to load history for %s: %w", creator, err)
	}

	summary := domain.EarningsSummary{
		Creator:           creator,
		WindowDays:        windowDays,
		TotalEarnings:     decimal.Zero,
		StreamingEarnings: decimal.Zero,
		BoostEarnings:     decimal.Zero,
		UntaggedEarnings:  decimal.Zero,
		Boosts:            []domain.BoostRecord{},
	}

	from, to := s.window(windowDays)
	for _, tx := range history {
		if tx.Direction != domain.DirectionReceived || !inWindow(tx.Timestamp, from, to) {
			continue
		}

		summary.Transactions++

		tag := memo.Decode(tx.Memo)
		switch tag.Kind {
		case memo.KindStream:
			summary.StreamingEarnings = summary.StreamingEarnings.Add(tx.Amount)
		case memo.KindBoost:
			summary.BoostEarnings = summary.BoostEarnings.Add(tx.Amount)
			if !tag.Partial {
				summary.Boosts = append(summary.Boosts, domain.BoostRecord{
					From:      tx.From,
					Amount:    tx.Amount,
					ContentID: tag.ContentID,
					Message:   tag.Text,
					Timestamp: tx.Timestamp,
					TxID:      tx.ID,
				})
			}
		default:
			summary.UntaggedEarnings = summary.UntaggedEarnings.Add(tx.Amount)
		}
	}

	summary.TotalEarnings = summary.StreamingEarnings.Add(summary.BoostEarnings)

	slices.SortStableFunc(summary.Boosts, func(a, b domain.BoostRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(summary.Boosts) > domain.MaxRecentBoosts {
		summary.Boosts = summary.Boosts[:domain.MaxRecentBoosts]
	}

	return summary, nil
}

// TotalSpending sums the payer's tagged outgoing transfers inside the last
// windowDays days.
func (s *EarningsService) TotalSpending(ctx context.Context, windowDays int) (domain.SpendingSummary, error) {
	if windowDays < 1 {
		return domain.SpendingSummary{}, fmt.Errorf("%w: got %d", domain.ErrInvalidWindow, windowDays)
	}

	history, err := s.ledger.History(ctx, s.cfg.Payer, s.cfg.HistoryLimit)
	if err != nil {
		return domain.SpendingSummary{}, fmt.Errorf("failed to load history for %s: %w", s.cfg.Payer, err)
	}

	summary := domain.SpendingSummary{
		Account:        s.cfg.Payer,
		WindowDays:     windowDays,
		TotalSpent:     decimal.Zero,
		StreamingSpent: decimal.Zero,
		BoostSpent:     decimal.Zero,
	}

	from, to := s.window(windowDays)
	for _, tx := range history {
		if tx.Direction != domain.DirectionSent || !inWindow(tx.Timestamp, from, to) {
			continue
		}

		switch memo.Decode(tx.Memo).Kind {
		case memo.KindStream:
			summary.StreamingSpent = summary.StreamingSpent.Add(tx.Amount)
		case memo.KindBoost:
			summary.BoostSpent = summary.BoostSpent.Add(tx.Amount)
		}
	}

	summary.TotalSpent = summary.StreamingSpent.Add(summary.BoostSpent)
	summary.AveragePerDay = summary.TotalSpent.DivRound(decimal.NewFromInt(int64(windowDays)), averagePrecision)

	return summary, nil
}

func (s *EarningsService) window(days int) (from, to time.Time) {
	to = s.clock.Now()
	return to.Add(-time.Duration(days) * 24 * time.Hour), to
}

// inWindow is inclusive on both ends.
func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}
