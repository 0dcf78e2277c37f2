package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/pscheid92/peakstream/internal/memo"
)

type BoostConfig struct {
	Payer     string
	Precision int32
}

type BoostOption func(*BoostService)

func WithBoostRecorder(r domain.BoostRecorder) BoostOption {
	return func(s *BoostService) { s.recorder = r }
}

func WithBoostObserver(o Observer) BoostOption {
	return func(s *BoostService) { s.observer = o }
}

// BoostService sends one-off payments. Each boost is exactly one transfer
// attempt; failures are reported to the caller and never retried.
type BoostService struct {
	ledger   domain.Ledger
	clock    clockwork.Clock
	cfg      BoostConfig
	recorder domain.BoostRecorder
	observer Observer
}

func NewBoostService(ledger domain.Ledger, clock clockwork.Clock, cfg BoostConfig, opts ...BoostOption) *BoostService {
	s := &BoostService{
		ledger:   ledger,
		clock:    clock,
		cfg:      cfg,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendBoost validates the boost, checks the payer balance and transfers the
// amount with a boost memo. The message is truncated, never rejected.
func (s *BoostService) SendBoost(ctx context.Context, req domain.SendBoostRequest) (domain.Boost, error) {
	if err := s.validate(req); err != nil {
		s.observer.ObserveBoost(BoostRejected, req.Amount)
		return domain.Boost{}, err
	}

	balance, err := s.ledger.Balance(ctx, s.cfg.Payer)
	if err != nil {
		s.observer.ObserveBoost(BoostFailed, req.Amount)
		return domain.Boost{}, fmt.Errorf("failed to check balance: %w", err)
	}
	if balance.LessThan(req.Amount) {
		s.observer.ObserveBoost(BoostRejected, req.Amount)
		return domain.Boost{}, fmt.Errorf("%w: balance %s, boost %s", domain.ErrInsufficientBalance, balance, req.Amount)
	}

	message := memo.TruncateMessage(req.Message)
	receipt, err := s.ledger.Transfer(ctx, domain.TransferRequest{
		From:   s.cfg.Payer,
		To:     req.Creator,
		Amount: req.Amount,
		Memo:   memo.EncodeBoost(req.ContentID, message),
	})
	if err != nil {
		s.observer.ObserveBoost(BoostFailed, req.Amount)
		if !errors.Is(err, domain.ErrTransferFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
		}
		return domain.Boost{}, err
	}

	boost := domain.Boost{
		ID:        uuid.NewString(),
		Creator:   req.Creator,
		Amount:    req.Amount,
		Message:   message,
		ContentID: req.ContentID,
		Timestamp: s.clock.Now(),
		TxID:      receipt.TransactionID,
	}

	s.observer.ObserveBoost(BoostSent, boost.Amount)
	slog.InfoContext(ctx, "Boost sent", "boost_id", boost.ID, "creator", boost.Creator, "amount", boost.Amount.String(), "tx_id", boost.TxID)

	if s.recorder != nil {
		if err := s.recorder.SaveBoost(context.WithoutCancel(ctx), boost); err != nil {
			slog.WarnContext(ctx, "Failed to archive boost", "boost_id", boost.ID, "error", err)
		}
	}

	return boost, nil
}

func (s *BoostService) validate(req domain.SendBoostRequest) error {
	if !domain.ValidAccountName(req.Creator) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAccount, req.Creator)
	}
	if req.Amount.LessThan(domain.MinBoostAmount) {
		return fmt.Errorf("%w: boost must be at least %s, got %s", domain.ErrBelowMinimum, domain.MinBoostAmount, req.Amount)
	}
	if !req.Amount.Equal(req.Amount.Truncate(s.cfg.Precision)) {
		return fmt.Errorf("%w: at most %d decimal places", domain.ErrInvalidAmount, s.cfg.Precision)
	}
	return nil
}
