package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/showcase-search/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type breakerFixture struct {
	cb    *CircuitBreakerClient
	url   string
	calls *atomic.Int32
}

func newBreakerFixture(t *testing.T, handler http.HandlerFunc) breakerFixture {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := fastConfig()
	cfg.MaxRetries = 0
	cb := NewCircuitBreakerClient(New(cfg), CircuitBreakerConfig{
		Name:         "category-resolver",
		MaxRequests:  1,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  2,
	}, testLogger())
	return breakerFixture{cb: cb, url: srv.URL, calls: calls}
}

type resolvePayload struct {
	Data struct {
		CategoryIDs []int64 `json:"category_ids"`
	} `json:"data"`
}

func TestCircuitBreaker_GetJSON(t *testing.T) {
	f := newBreakerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"data":{"category_ids":[1,2]}}`))
	})

	var out resolvePayload
	require.NoError(t, f.cb.GetJSON(context.Background(), f.url, &out))
	assert.Equal(t, []int64{1, 2}, out.Data.CategoryIDs)
	assert.Equal(t, gobreaker.StateClosed, f.cb.State())
}

func TestCircuitBreaker_GetJSON_DecodeError(t *testing.T) {
	f := newBreakerFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	var out resolvePayload
	err := f.cb.GetJSON(context.Background(), f.url, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode category-resolver response")
}

func TestCircuitBreaker_4xxNotCountedAsFailure(t *testing.T) {
	f := newBreakerFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_INPUT","message":"q is required"}}`))
	})

	for i := 0; i < 5; i++ {
		var out resolvePayload
		err := f.cb.GetJSON(context.Background(), f.url, &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
	assert.Equal(t, gobreaker.StateClosed, f.cb.State())
}

func TestCircuitBreaker_TripsAndRecovers(t *testing.T) {
	var healthy atomic.Bool
	f := newBreakerFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		if healthy.Load() {
			_, _ = w.Write([]byte(`{"data":{"category_ids":[]}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		var out resolvePayload
		require.Error(t, f.cb.GetJSON(context.Background(), f.url, &out))
	}
	require.Equal(t, gobreaker.StateOpen, f.cb.State())

	before := f.calls.Load()
	var out resolvePayload
	err := f.cb.GetJSON(context.Background(), f.url, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
	assert.Equal(t, before, f.calls.Load(), "open breaker must not reach the server")

	healthy.Store(true)
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, f.cb.GetJSON(context.Background(), f.url, &out))
	assert.Equal(t, gobreaker.StateClosed, f.cb.State())
}

func TestCircuitBreaker_ContextCanceled(t *testing.T) {
	f := newBreakerFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var out resolvePayload
	err := f.cb.GetJSON(ctx, f.url, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
