package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/peakstream/internal/domain"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBoost(t *testing.T) {
	var got domain.SendBoostRequest
	srv := newTestServer(t, Deps{Boosts: &mockBoosts{
		sendFn: func(_ context.Context, req domain.SendBoostRequest) (domain.Boost, error) {
			got = req
			return domain.Boost{ID: "b1", Creator: req.Creator, Amount: req.Amount, Message: req.Message, TxID: "tx-1", Timestamp: testNow}, nil
		},
	}})

	rec := do(t, srv, http.MethodPost, "/api/boosts", `{"creator":"creator","amount":"2.5","message":"great show","content_id":"ep-42"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.SendBoostRequest{Creator: "creator", Amount: dec("2.5"), Message: "great show", ContentID: "ep-42"}, got)

	boost := decodeBody[domain.Boost](t, rec.Body.Bytes())
	assert.Equal(t, "b1", boost.ID)
	assert.Equal(t, "tx-1", boost.TxID)
}

func TestSendBoost_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"below minimum", fmt.Errorf("%w: 0.05", domain.ErrBelowMinimum), http.StatusBadRequest},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusPaymentRequired},
		{"transfer failed", fmt.Errorf("%w: relay rejected", domain.ErrTransferFailed), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Boosts: &mockBoosts{
				sendFn: func(context.Context, domain.SendBoostRequest) (domain.Boost, error) { return domain.Boost{}, tt.err },
			}})

			rec := do(t, srv, http.MethodPost, "/api/boosts", `{"creator":"creator","amount":"1"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeBody[apperrors.ErrorResponse](t, rec.Body.Bytes())
			assert.Equal(t, "1", resp.Context["amount"])
		})
	}
}

func TestListBoosts(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		rec := do(t, srv, http.MethodGet, "/api/boosts", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("default limit", func(t *testing.T) {
		var gotLimit int
		srv := newTestServer(t, Deps{BoostArchive: &mockBoostArchive{
			listFn: func(_ context.Context, _ string, limit int) ([]domain.Boost, error) {
				gotLimit = limit
				return nil, nil
			},
		}})

		rec := do(t, srv, http.MethodGet, "/api/boosts", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, defaultListLimit, gotLimit)
		assert.JSONEq(t, `{"boosts":[]}`, rec.Body.String())
	})

	t.Run("archive failure", func(t *testing.T) {
		srv := newTestServer(t, Deps{BoostArchive: &mockBoostArchive{
			listFn: func(context.Context, string, int) ([]domain.Boost, error) { return nil, errors.New("db down") },
		}})

		rec := do(t, srv, http.MethodGet, "/api/boosts?creator=creator", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
