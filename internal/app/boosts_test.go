package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/pscheid92/peakstream/internal/memo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoostService(ledger *fakeLedger, opts ...BoostOption) (*BoostService, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewBoostService(ledger, clock, BoostConfig{Payer: testPayer, Precision: 8}, opts...), clock
}

func boostRequest(amount string) domain.SendBoostRequest {
	return domain.SendBoostRequest{
		Creator:   "podcaster",
		Amount:    dec(amount),
		Message:   "Loved the part about Go generics!",
		ContentID: "ep-42",
	}
}

func TestSendBoost_Success(t *testing.T) {
	ledger := newFakeLedger("10")
	rec := &fakeBoostRecorder{}
	obs := newFakeObserver()
	svc, clock := newTestBoostService(ledger, WithBoostRecorder(rec), WithBoostObserver(obs))

	boost, err := svc.SendBoost(context.Background(), boostRequest("5"))

	require.NoError(t, err)
	assert.NotEmpty(t, boost.ID)
	assert.Equal(t, "podcaster", boost.Creator)
	assert.True(t, boost.Amount.Equal(dec("5")))
	assert.Equal(t, "tx-1", boost.TxID)
	assert.Equal(t, clock.Now(), boost.Timestamp)

	transfers := ledger.getTransfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, testPayer, transfers[0].From)
	assert.Equal(t, "V4V_BOOST:ep-42:Loved the part about Go generics!", transfers[0].Memo)
	assert.True(t, ledger.currentBalance().Equal(dec("5")))

	require.Len(t, rec.boosts, 1)
	assert.Equal(t, boost, rec.boosts[0])
	assert.Equal(t, 1, obs.boosts[BoostSent])
}

func TestSendBoost_MinimumAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr error
	}{
		{"0.05", domain.ErrBelowMinimum},
		{"0.09999999", domain.ErrBelowMinimum},
		{"0", domain.ErrBelowMinimum},
		{"-1", domain.ErrBelowMinimum},
		{"0.1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			ledger := newFakeLedger("10")
			svc, _ := newTestBoostService(ledger)

			_, err := svc.SendBoost(context.Background(), boostRequest(tt.amount))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, ledger.transferCount())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, ledger.transferCount())
		})
	}
}

func TestSendBoost_RejectsExcessPrecision(t *testing.T) {
	ledger := newFakeLedger("10")
	svc, _ := newTestBoostService(ledger)

	_, err := svc.SendBoost(context.Background(), boostRequest("0.123456789"))

	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Zero(t, ledger.getBalanceCalls())
}

func TestSendBoost_InvalidCreator(t *testing.T) {
	ledger := newFakeLedger("10")
	obs := newFakeObserver()
	svc, _ := newTestBoostService(ledger, WithBoostObserver(obs))

	req := boostRequest("1")
	req.Creator = "ab"
	_, err := svc.SendBoost(context.Background(), req)

	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
	assert.Zero(t, ledger.getBalanceCalls())
	assert.Equal(t, 1, obs.boosts[BoostRejected])
}

func TestSendBoost_InsufficientBalance(t *testing.T) {
	ledger := newFakeLedger("0.5")
	rec := &fakeBoostRecorder{}
	svc, _ := newTestBoostService(ledger, WithBoostRecorder(rec))

	_, err := svc.SendBoost(context.Background(), boostRequest("1"))

	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Zero(t, ledger.transferCount())
	assert.Empty(t, rec.boosts)
}

func TestSendBoost_BalanceExactlyEnough(t *testing.T) {
	ledger := newFakeLedger("1")
	svc, _ := newTestBoostService(ledger)

	_, err := svc.SendBoost(context.Background(), boostRequest("1"))

	require.NoError(t, err)
	assert.True(t, ledger.currentBalance().IsZero())
}

func TestSendBoost_BalanceLookupFails(t *testing.T) {
	ledger := newFakeLedger("10")
	ledger.setBalanceErr(domain.ErrLedgerUnavailable)
	svc, _ := newTestBoostService(ledger)

	_, err := svc.SendBoost(context.Background(), boostRequest("1"))

	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.Zero(t, ledger.transferCount())
}

func TestSendBoost_TransferFailure(t *testing.T) {
	ledger := newFakeLedger("10")
	ledger.setTransferErr(errors.New("broadcast rejected"))
	rec := &fakeBoostRecorder{}
	obs := newFakeObserver()
	svc, _ := newTestBoostService(ledger, WithBoostRecorder(rec), WithBoostObserver(obs))

	_, err := svc.SendBoost(context.Background(), boostRequest("1"))

	require.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Contains(t, err.Error(), "broadcast rejected")
	assert.Empty(t, rec.boosts)
	assert.Equal(t, 1, obs.boosts[BoostFailed])
}

func TestSendBoost_TruncatesMessage(t *testing.T) {
	ledger := newFakeLedger("10")
	svc, _ := newTestBoostService(ledger)

	req := boostRequest("1")
	req.Message = strings.Repeat("ü", 150)
	boost, err := svc.SendBoost(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ü", memo.MaxMessageLength), boost.Message)
	assert.Equal(t, "V4V_BOOST:ep-42:"+boost.Message, ledger.getTransfers()[0].Memo)
}

func TestSendBoost_RecorderFailureIsNotFatal(t *testing.T) {
	ledger := newFakeLedger("10")
	rec := &fakeBoostRecorder{err: errors.New("db down")}
	svc, _ := newTestBoostService(ledger, WithBoostRecorder(rec))

	boost, err := svc.SendBoost(context.Background(), boostRequest("1"))

	require.NoError(t, err)
	assert.Equal(t, "tx-1", boost.TxID)
}

func TestSendBoost_MessageWithColonsRoundTrips(t *testing.T) {
	ledger := newFakeLedger("10")
	svc, _ := newTestBoostService(ledger)

	req := boostRequest("1")
	req.ContentID = "x"
	req.Message = "a:b:c"
	_, err := svc.SendBoost(context.Background(), req)
	require.NoError(t, err)

	tag := memo.Decode(ledger.getTransfers()[0].Memo)
	assert.Equal(t, memo.KindBoost, tag.Kind)
	assert.Equal(t, "x", tag.ContentID)
	assert.Equal(t, "a:b:c", tag.Text)
}
