package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlcv_backend/internal/feature/candles/domain"
	"ohlcv_backend/internal/feature/candles/domain/kline"
)

const twoKlines = `[
	[1704067200000,"42283.58","42554.57","42261.02","42475.23","1271.68108",1704070799999,"53957248.97",45119,"682.92521","28977506.07","0"],
	[1704070800000,"42475.23","42775.00","42431.65","42613.56","1196.37856",1704074399999,"51000000.00",40000,"600.00000","25000000.00","0"]
]`

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RetryBase = time.Millisecond
	return cfg
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	client := &http.Client{}

	c := NewClient(cfg, client)

	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.cfg.BaseURL != "https://api.binance.com" {
		t.Errorf("expected base url %q, got %q", "https://api.binance.com", c.cfg.BaseURL)
	}
}

func TestClient_FetchBatch_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request parameters
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1h", q.Get("interval"))
		assert.Equal(t, "1704067200000", q.Get("startTime"))
		assert.Equal(t, "1704153600000", q.Get("endTime"))
		assert.Equal(t, "1000", q.Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(twoKlines))
	}))
	defer server.Close()

	c := NewClient(testConfig(server.URL), server.Client())
	rows, err := c.FetchBatch(context.Background(), "BTCUSDT", "1h", 1704067200000, 1704153600000, 1000)

	require.NoError(t, err)
	require.Len(t, rows, 2)

	parsed, err := kline.ParseBatch(rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1704067200000), parsed[0].OpenTimeMs)
	assert.Equal(t, 42613.56, parsed[1].Close)
}

func TestClient_FetchBatch_EmptyArray(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	rows, err := NewClient(testConfig(server.URL), server.Client()).
		FetchBatch(context.Background(), "BTCUSDT", "1h", 0, 1, 1000)

	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClient_FetchBatch_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{"too many requests", http.StatusTooManyRequests},
		{"internal server error", http.StatusInternalServerError},
		{"bad gateway", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte(twoKlines))
			}))
			defer server.Close()

			rows, err := NewClient(testConfig(server.URL), server.Client()).
				FetchBatch(context.Background(), "BTCUSDT", "1h", 0, 1, 1000)

			require.NoError(t, err)
			assert.Len(t, rows, 2)
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestClient_FetchBatch_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(testConfig(server.URL), server.Client()).
		FetchBatch(context.Background(), "BTCUSDT", "1h", 0, 1, 1000)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	// 1 attempt + 3 retries
	assert.Equal(t, int32(4), calls.Load())
}

func TestClient_FetchBatch_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	_, err := NewClient(testConfig(server.URL), server.Client()).
		FetchBatch(context.Background(), "NOPE", "1h", 0, 1, 1000)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol.")
	assert.Contains(t, err.Error(), "-1121")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchBatch_NonArrayBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"object", `{"unexpected":true}`},
		{"invalid json", `[[1,2`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(testConfig(server.URL), server.Client()).
				FetchBatch(context.Background(), "BTCUSDT", "1h", 0, 1, 1000)

			assert.ErrorIs(t, err, domain.ErrMalformedData)
		})
	}
}

func TestClient_FetchBatch_PerAttemptTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 0

	start := time.Now()
	_, err := NewClient(cfg, server.Client()).FetchBatch(context.Background(), "BTCUSDT", "1h", 0, 1, 1000)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"),
		"expected a timeout error, got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_FetchBatch_ContextCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(testConfig(server.URL), server.Client()).FetchBatch(ctx, "BTCUSDT", "1h", 0, 1, 1000)

	assert.ErrorIs(t, err, context.Canceled)
}
