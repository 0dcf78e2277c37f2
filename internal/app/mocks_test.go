package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
)

const testPayer = "listener"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeLedger is an in-memory ledger whose balance shrinks with every transfer.
type fakeLedger struct {
	mu           sync.Mutex
	balance      decimal.Decimal
	balanceErr   error
	transferErr  error
	history      []domain.LedgerTransaction
	historyErr   error
	transfers    []domain.TransferRequest
	balanceCalls int
	historyCalls []string
}

func newFakeLedger(balance string) *fakeLedger {
	return &fakeLedger{balance: dec(balance)}
}

func (f *fakeLedger) Balance(_ context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeLedger) Transfer(_ context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return domain.TransferReceipt{}, f.transferErr
	}
	f.transfers = append(f.transfers, req)
	f.balance = f.balance.Sub(req.Amount)
	return domain.TransferReceipt{TransactionID: fmt.Sprintf("tx-%d", len(f.transfers)), BlockNum: int64(len(f.transfers))}, nil
}

func (f *fakeLedger) History(_ context.Context, account string, limit int) ([]domain.LedgerTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, account)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeLedger) setBalance(b string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = dec(b)
}

func (f *fakeLedger) setTransferErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferErr = err
}

func (f *fakeLedger) setBalanceErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceErr = err
}

func (f *fakeLedger) currentBalance() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}

func (f *fakeLedger) getTransfers() []domain.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TransferRequest, len(f.transfers))
	copy(out, f.transfers)
	return out
}

func (f *fakeLedger) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

func (f *fakeLedger) getBalanceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceCalls
}

type recordedEvent struct {
	event   domain.SessionEvent
	session domain.StreamSession
}

type fakeSessionRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (r *fakeSessionRecorder) RecordSession(_ context.Context, event domain.SessionEvent, session domain.StreamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, session: session})
	return r.err
}

func (r *fakeSessionRecorder) eventKinds() []domain.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SessionEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event)
	}
	return out
}

func (r *fakeSessionRecorder) recorded() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// blockingLedger holds every transfer until release is closed.
type blockingLedger struct {
	*fakeLedger
	entered chan struct{}
	release chan struct{}
}

func newBlockingLedger(balance string) *blockingLedger {
	return &blockingLedger{
		fakeLedger: newFakeLedger(balance),
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
}

func (b *blockingLedger) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return domain.TransferReceipt{}, ctx.Err()
	}
	return b.fakeLedger.Transfer(ctx, req)
}

type fakeBoostRecorder struct {
	mu     sync.Mutex
	boosts []domain.Boost
	err    error
}

func (r *fakeBoostRecorder) SaveBoost(_ context.Context, b domain.Boost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boosts = append(r.boosts, b)
	return r.err
}

type fakeObserver struct {
	mu     sync.Mutex
	ticks  map[string]int
	boosts map[string]int
	active int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{ticks: map[string]int{}, boosts: map[string]int{}}
}

func (o *fakeObserver) ObserveTick(result string, _ decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks[result]++
}

func (o *fakeObserver) SetActiveStreams(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = n
}

func (o *fakeObserver) ObserveBoost(result string, _ decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.boosts[result]++
}

func (o *fakeObserver) tickCount(result string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ticks[result]
}

func (o *fakeObserver) activeStreams() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}
