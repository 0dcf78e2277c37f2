package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/pscheid92/peakstream/internal/memo"
	"github.com/pscheid92/peakstream/internal/platform/correlation"
	"github.com/shopspring/decimal"
)

const (
	// TickInterval is fixed: six ticks per minute, each paying RatePerMinute/6.
	TickInterval = time.Minute / domain.TicksPerMinute

	defaultLedgerTimeout = 15 * time.Second
	recordTimeout        = 5 * time.Second
)

var ErrManagerClosed = errors.New("stream manager is shut down")

var ticksPerMinute = decimal.NewFromInt(domain.TicksPerMinute)

type StreamConfig struct {
	Payer         string
	Precision     int32
	LedgerTimeout time.Duration
}

type StreamOption func(*StreamManager)

// WithSessionRecorder adds a recorder that observes every session state change.
func WithSessionRecorder(r domain.SessionRecorder) StreamOption {
	return func(m *StreamManager) { m.recorders = append(m.recorders, r) }
}

func WithStreamObserver(o Observer) StreamOption {
	return func(m *StreamManager) { m.observer = o }
}

// StreamManager owns all streaming sessions of one payer account.
//
// Each active session has exactly one emitter goroutine driven by a clock
// ticker. Pause and stop cancel the emitter before returning; a tick that is
// already talking to the ledger finishes, but re-checks that its emitter is
// still current before transferring. Ticks of one session never overlap, even
// across pause/resume, because they share the session's tick mutex.
type StreamManager struct {
	ledger    domain.Ledger
	clock     clockwork.Clock
	cfg       StreamConfig
	recorders []domain.SessionRecorder
	observer  Observer

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*streamEntry
	closed   bool
}

type streamEntry struct {
	session domain.StreamSession
	emitter *emitter // nil while paused

	tickMu sync.Mutex
}

type emitter struct {
	ticker clockwork.Ticker
	stop   chan struct{}
}

func NewStreamManager(ledger domain.Ledger, clock clockwork.Clock, cfg StreamConfig, opts ...StreamOption) *StreamManager {
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = defaultLedgerTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &StreamManager{
		ledger:   ledger,
		clock:    clock,
		cfg:      cfg,
		observer: nopObserver{},
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*streamEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AmountPerTick is the transfer amount of one tick at the given rate,
// truncated to the token precision.
func (m *StreamManager) AmountPerTick(ratePerMinute decimal.Decimal) decimal.Decimal {
	return ratePerMinute.Div(ticksPerMinute).Truncate(m.cfg.Precision)
}

// StartStreaming validates the request, checks that the payer can cover at
// least one tick, registers the session and schedules its emitter.
func (m *StreamManager) StartStreaming(ctx context.Context, req domain.StartStreamRequest) (string, error) {
	if !domain.ValidAccountName(req.Creator) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAccount, req.Creator)
	}
	if !req.RatePerMinute.IsPositive() {
		return "", fmt.Errorf("%w: rate must be positive, got %s", domain.ErrInvalidRate, req.RatePerMinute)
	}
	amount := m.AmountPerTick(req.RatePerMinute)
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: rate %s is below the token precision", domain.ErrInvalidRate, req.RatePerMinute)
	}

	balance, err := m.ledger.Balance(ctx, m.cfg.Payer)
	if err != nil {
		return "", fmt.Errorf("failed to check balance: %w", err)
	}
	if balance.LessThan(amount) {
		return "", fmt.Errorf("%w: balance %s, need %s per tick", domain.ErrInsufficientBalance, balance, amount)
	}

	entry := &streamEntry{
		session: domain.StreamSession{
			ID:            uuid.NewString(),
			Creator:       req.Creator,
			RatePerMinute: req.RatePerMinute,
			ContentID:     req.ContentID,
			Metadata:      maps.Clone(req.Metadata),
			StartTime:     m.clock.Now(),
			TotalSent:     decimal.Zero,
			IsActive:      true,
		},
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	m.sessions[entry.session.ID] = entry
	m.startEmitterLocked(entry)
	snap := entry.session.Clone()
	active := m.activeCountLocked()
	m.mu.Unlock()

	m.observer.SetActiveStreams(active)
	slog.InfoContext(ctx, "Streaming started", "session_id", snap.ID, "creator", snap.Creator, "rate_per_minute", snap.RatePerMinute.String(), "content_id", snap.ContentID)
	m.record(ctx, domain.SessionStarted, snap)

	return snap.ID, nil
}

// PauseStreaming cancels the session's emitter. It returns false only if the
// session is unknown; pausing a paused session is a no-op.
func (m *StreamManager) PauseStreaming(ctx context.Context, id string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	changed := entry.session.IsActive
	m.stopEmitterLocked(entry)
	entry.session.IsActive = false
	snap := entry.session.Clone()
	active := m.activeCountLocked()
	m.mu.Unlock()

	if changed {
		m.observer.SetActiveStreams(active)
		slog.InfoContext(ctx, "Streaming paused", "session_id", id, "total_sent", snap.TotalSent.String())
		m.record(ctx, domain.SessionPaused, snap)
	}
	return true
}

// ResumeStreaming reschedules a paused session without re-checking the
// balance; the next tick does that. It returns false if the session is
// unknown or the manager is shut down.
func (m *StreamManager) ResumeStreaming(ctx context.Context, id string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if !ok || m.closed {
		m.mu.Unlock()
		return false
	}
	changed := !entry.session.IsActive
	if changed {
		entry.session.IsActive = true
		m.startEmitterLocked(entry)
	}
	snap := entry.session.Clone()
	active := m.activeCountLocked()
	m.mu.Unlock()

	if changed {
		m.observer.SetActiveStreams(active)
		slog.InfoContext(ctx, "Streaming resumed", "session_id", id)
		m.record(ctx, domain.SessionResumed, snap)
	}
	return true
}

// StopStreaming cancels the emitter and forgets the session. It returns false
// if the session was not registered.
func (m *StreamManager) StopStreaming(ctx context.Context, id string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.stopEmitterLocked(entry)
	entry.session.IsActive = false
	delete(m.sessions, id)
	snap := entry.session.Clone()
	active := m.activeCountLocked()
	m.mu.Unlock()

	m.observer.SetActiveStreams(active)
	slog.InfoContext(ctx, "Streaming stopped", "session_id", id, "total_sent", snap.TotalSent.String())
	m.record(ctx, domain.SessionStopped, snap)
	return true
}

// ChangeRate replaces a session with a new one at a different rate. The old
// session is stopped first, so the partial interval at the switch is not paid.
// The new rate and the payer balance are checked before anything is stopped;
// on error the old session keeps running.
func (m *StreamManager) ChangeRate(ctx context.Context, id string, ratePerMinute decimal.Decimal) (string, error) {
	if !ratePerMinute.IsPositive() {
		return "", fmt.Errorf("%w: rate must be positive, got %s", domain.ErrInvalidRate, ratePerMinute)
	}
	amount := m.AmountPerTick(ratePerMinute)
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: rate %s is below the token precision", domain.ErrInvalidRate, ratePerMinute)
	}

	old, ok := m.GetStreamSession(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}

	balance, err := m.ledger.Balance(ctx, m.cfg.Payer)
	if err != nil {
		return "", fmt.Errorf("failed to check balance: %w", err)
	}
	if balance.LessThan(amount) {
		return "", fmt.Errorf("%w: balance %s, need %s per tick", domain.ErrInsufficientBalance, balance, amount)
	}

	m.StopStreaming(ctx, id)

	newID, err := m.StartStreaming(ctx, domain.StartStreamRequest{
		Creator:       old.Creator,
		RatePerMinute: ratePerMinute,
		ContentID:     old.ContentID,
		Metadata:      old.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to restart session at new rate: %w", err)
	}
	return newID, nil
}

// GetStreamSession returns a snapshot of the session.
func (m *StreamManager) GetStreamSession(id string) (domain.StreamSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok {
		return domain.StreamSession{}, false
	}
	return entry.session.Clone(), true
}

// GetActiveStreams returns snapshots of all active sessions, oldest first.
func (m *StreamManager) GetActiveStreams() []domain.StreamSession {
	m.mu.Lock()
	result := make([]domain.StreamSession, 0, len(m.sessions))
	for _, entry := range m.sessions {
		if entry.session.IsActive {
			result = append(result, entry.session.Clone())
		}
	}
	m.mu.Unlock()

	slices.SortFunc(result, func(a, b domain.StreamSession) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// Shutdown cancels every emitter, aborts in-flight ledger calls and waits for
// the emitter goroutines to exit. Sessions stay readable but inactive.
func (m *StreamManager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	for _, entry := range m.sessions {
		m.stopEmitterLocked(entry)
		entry.session.IsActive = false
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.observer.SetActiveStreams(0)
	slog.Info("Stream manager stopped")
}

func (m *StreamManager) startEmitterLocked(entry *streamEntry) {
	em := &emitter{
		ticker: m.clock.NewTicker(TickInterval),
		stop:   make(chan struct{}),
	}
	entry.emitter = em

	m.wg.Add(1)
	go m.runEmitter(entry, em)
}

func (m *StreamManager) stopEmitterLocked(entry *streamEntry) {
	if entry.emitter == nil {
		return
	}
	entry.emitter.ticker.Stop()
	close(entry.emitter.stop)
	entry.emitter = nil
}

func (m *StreamManager) runEmitter(entry *streamEntry, em *emitter) {
	defer m.wg.Done()

	for {
		select {
		case <-em.stop:
			return
		case <-m.baseCtx.Done():
			return
		case <-em.ticker.Chan():
			m.tick(entry, em)
		}
	}
}

// current reports whether em is still the live emitter of entry.
func (m *StreamManager) current(entry *streamEntry, em *emitter) (domain.StreamSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.emitter != em || !entry.session.IsActive {
		return domain.StreamSession{}, false
	}
	return entry.session.Clone(), true
}

func (m *StreamManager) tick(entry *streamEntry, em *emitter) {
	entry.tickMu.Lock()
	defer entry.tickMu.Unlock()

	session, ok := m.current(entry, em)
	if !ok {
		m.observer.ObserveTick(TickSuperseded, decimal.Zero)
		return
	}

	ctx := correlation.WithID(m.baseCtx, correlation.NewID())
	amount := m.AmountPerTick(session.RatePerMinute)

	balCtx, cancel := context.WithTimeout(ctx, m.cfg.LedgerTimeout)
	balance, err := m.ledger.Balance(balCtx, m.cfg.Payer)
	cancel()
	if err != nil {
		slog.WarnContext(ctx, "Stream tick: balance check failed", "session_id", session.ID, "error", err)
		m.observer.ObserveTick(TickBalanceError, decimal.Zero)
		return
	}

	if balance.LessThan(amount) {
		slog.InfoContext(ctx, "Stream tick: balance too low, pausing", "session_id", session.ID, "balance", balance.String(), "amount", amount.String())
		m.observer.ObserveTick(TickPausedBalance, decimal.Zero)
		m.autoPause(ctx, entry, em)
		return
	}

	if _, ok := m.current(entry, em); !ok {
		m.observer.ObserveTick(TickSuperseded, decimal.Zero)
		return
	}

	txCtx, cancel := context.WithTimeout(ctx, m.cfg.LedgerTimeout)
	receipt, err := m.ledger.Transfer(txCtx, domain.TransferRequest{
		From:   m.cfg.Payer,
		To:     session.Creator,
		Amount: amount,
		Memo:   memo.EncodeStream(session.ContentID, session.Title()),
	})
	cancel()
	if err != nil {
		slog.WarnContext(ctx, "Stream tick: transfer failed", "session_id", session.ID, "creator", session.Creator, "amount", amount.String(), "error", err)
		m.observer.ObserveTick(TickTransferError, decimal.Zero)
		return
	}

	m.mu.Lock()
	entry.session.TotalSent = entry.session.TotalSent.Add(amount)
	snap := entry.session.Clone()
	_, registered := m.sessions[snap.ID]
	m.mu.Unlock()

	m.observer.ObserveTick(TickSent, amount)
	slog.DebugContext(ctx, "Stream tick sent", "session_id", snap.ID, "amount", amount.String(), "total_sent", snap.TotalSent.String(), "tx_id", receipt.TransactionID)

	// The session was stopped while this transfer was in flight. Recorders
	// already saw the stop; record it again with the final total.
	if !registered {
		m.record(ctx, domain.SessionStopped, snap)
		return
	}
	m.record(ctx, domain.SessionTicked, snap)
}

// autoPause pauses the session only if em is still its emitter, so a tick
// from a cancelled emitter cannot pause a freshly resumed session.
func (m *StreamManager) autoPause(ctx context.Context, entry *streamEntry, em *emitter) {
	m.mu.Lock()
	if entry.emitter != em {
		m.mu.Unlock()
		return
	}
	m.stopEmitterLocked(entry)
	entry.session.IsActive = false
	snap := entry.session.Clone()
	active := m.activeCountLocked()
	m.mu.Unlock()

	m.observer.SetActiveStreams(active)
	m.record(ctx, domain.SessionPaused, snap)
}

func (m *StreamManager) activeCountLocked() int {
	n := 0
	for _, entry := range m.sessions {
		if entry.session.IsActive {
			n++
		}
	}
	return n
}

func (m *StreamManager) record(ctx context.Context, event domain.SessionEvent, snap domain.StreamSession) {
	if len(m.recorders) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	for _, r := range m.recorders {
		if err := r.RecordSession(ctx, event, snap); err != nil {
			slog.WarnContext(ctx, "Failed to record session", "session_id", snap.ID, "event", string(event), "error", err)
		}
	}
}
