package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/peakstream/internal/domain"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestStartStream(t *testing.T) {
	var got domain.StartStreamRequest
	streams := &mockStreams{
		startFn: func(_ context.Context, req domain.StartStreamRequest) (string, error) {
			got = req
			return "s1", nil
		},
		getFn: func(id string) (domain.StreamSession, bool) {
			return activeSession(id), true
		},
	}
	srv := newTestServer(t, Deps{Streams: streams})

	rec := do(t, srv, http.MethodPost, "/api/streams",
		`{"creator":"creator","rate_per_minute":"0.6","content_id":"ep-42","metadata":{"title":"Episode 42"}}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "creator", got.Creator)
	assert.True(t, got.RatePerMinute.Equal(dec("0.6")))
	assert.Equal(t, "Episode 42", got.Metadata["title"])

	resp := decodeBody[streamResponse](t, rec.Body.Bytes())
	assert.Equal(t, "s1", resp.ID)
	assert.True(t, resp.AmountPerTick.Equal(dec("0.1")), "got %s", resp.AmountPerTick)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestStartStream_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"invalid account", fmt.Errorf("%w: %q", domain.ErrInvalidAccount, "X"), http.StatusBadRequest, apperrors.TypeValidation},
		{"invalid rate", domain.ErrInvalidRate, http.StatusBadRequest, apperrors.TypeValidation},
		{"insufficient balance", fmt.Errorf("%w: have 0", domain.ErrInsufficientBalance), http.StatusPaymentRequired, apperrors.TypePaymentRequired},
		{"ledger unavailable", fmt.Errorf("balance: %w", domain.ErrLedgerUnavailable), http.StatusBadGateway, apperrors.TypeExternal},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, apperrors.TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Streams: &mockStreams{
				startFn: func(context.Context, domain.StartStreamRequest) (string, error) { return "", tt.err },
			}})

			rec := do(t, srv, http.MethodPost, "/api/streams", `{"creator":"creator","rate_per_minute":1}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeBody[apperrors.ErrorResponse](t, rec.Body.Bytes())
			assert.Equal(t, tt.wantType, resp.Type)
			assert.Equal(t, "creator", resp.Context["creator"])
		})
	}
}

func TestStartStream_MalformedBody(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rec := do(t, srv, http.MethodPost, "/api/streams", `{"rate_per_minute":"lots"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStreams(t *testing.T) {
	srv := newTestServer(t, Deps{Streams: &mockStreams{
		activeFn: func() []domain.StreamSession {
			return []domain.StreamSession{activeSession("a"), activeSession("b")}
		},
	}})

	rec := do(t, srv, http.MethodGet, "/api/streams", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[struct {
		Streams []streamResponse `json:"streams"`
	}](t, rec.Body.Bytes())
	require.Len(t, resp.Streams, 2)
	assert.Equal(t, "a", resp.Streams[0].ID)
}

func TestListStreams_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rec := do(t, srv, http.MethodGet, "/api/streams", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"streams":[]}`, rec.Body.String())
}

func TestGetStream_NotFound(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rec := do(t, srv, http.MethodGet, "/api/streams/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseStream(t *testing.T) {
	paused := activeSession("s1")
	paused.IsActive = false
	srv := newTestServer(t, Deps{Streams: &mockStreams{
		pauseFn: func(_ context.Context, id string) bool { return id == "s1" },
		getFn:   func(string) (domain.StreamSession, bool) { return paused, true },
	}})

	rec := do(t, srv, http.MethodPost, "/api/streams/s1/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[streamResponse](t, rec.Body.Bytes()).IsActive)

	rec = do(t, srv, http.MethodPost, "/api/streams/other/pause", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResumeStream(t *testing.T) {
	tests := []struct {
		name       string
		resumed    bool
		exists     bool
		wantStatus int
	}{
		{"resumed", true, true, http.StatusOK},
		{"refused for existing session", false, true, http.StatusConflict},
		{"unknown session", false, false, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Streams: &mockStreams{
				resumeFn: func(context.Context, string) bool { return tt.resumed },
				getFn: func(id string) (domain.StreamSession, bool) {
					return activeSession(id), tt.exists
				},
			}})

			rec := do(t, srv, http.MethodPost, "/api/streams/s1/resume", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestChangeRate(t *testing.T) {
	var gotRate decimal.Decimal
	srv := newTestServer(t, Deps{Streams: &mockStreams{
		changeRateFn: func(_ context.Context, id string, rate decimal.Decimal) (string, error) {
			if id != "old" {
				return "", domain.ErrSessionNotFound
			}
			gotRate = rate
			return "new", nil
		},
		getFn: func(id string) (domain.StreamSession, bool) { return activeSession(id), true },
	}})

	rec := do(t, srv, http.MethodPost, "/api/streams/old/rate", `{"rate_per_minute":"1.2"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, gotRate.Equal(dec("1.2")))
	resp := decodeBody[struct {
		PreviousID string         `json:"previous_id"`
		Session    streamResponse `json:"session"`
	}](t, rec.Body.Bytes())
	assert.Equal(t, "old", resp.PreviousID)
	assert.Equal(t, "new", resp.Session.ID)

	rec = do(t, srv, http.MethodPost, "/api/streams/gone/rate", `{"rate_per_minute":"1.2"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopStream(t *testing.T) {
	stopped := map[string]bool{}
	srv := newTestServer(t, Deps{Streams: &mockStreams{
		getFn: func(id string) (domain.StreamSession, bool) { return activeSession(id), id == "s1" },
		stopFn: func(_ context.Context, id string) bool {
			if id != "s1" || stopped[id] {
				return false
			}
			stopped[id] = true
			return true
		},
	}})

	rec := do(t, srv, http.MethodDelete, "/api/streams/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"stopped","id":"s1","total_sent":"0.3"}`, rec.Body.String())

	rec = do(t, srv, http.MethodDelete, "/api/streams/s1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMirroredStreams(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		rec := do(t, srv, http.MethodGet, "/api/streams/mirrored", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("lists mirror", func(t *testing.T) {
		srv := newTestServer(t, Deps{Mirror: &mockMirror{sessions: []domain.StreamSession{activeSession("m1")}}})
		rec := do(t, srv, http.MethodGet, "/api/streams/mirrored", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"m1"`)
	})

	t.Run("mirror failure", func(t *testing.T) {
		srv := newTestServer(t, Deps{Mirror: &mockMirror{err: errors.New("redis down")}})
		rec := do(t, srv, http.MethodGet, "/api/streams/mirrored", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestArchivedStreams(t *testing.T) {
	var gotCreator string
	var gotLimit int
	archive := &mockSessionArchive{listFn: func(_ context.Context, creator string, limit int) ([]domain.ArchivedSession, error) {
		gotCreator, gotLimit = creator, limit
		return []domain.ArchivedSession{{ID: "old", Creator: creator, TotalSent: dec("1.5")}}, nil
	}}
	srv := newTestServer(t, Deps{SessionArchive: archive})

	rec := do(t, srv, http.MethodGet, "/api/streams/archive?creator=creator&limit=5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "creator", gotCreator)
	assert.Equal(t, 5, gotLimit)
	assert.Contains(t, rec.Body.String(), `"total_sent":"1.5"`)

	rec = do(t, srv, http.MethodGet, "/api/streams/archive?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
