package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer answers successive requests with the given statuses and
// repeats the last one once the script runs out.
type scriptedServer struct {
	mu       sync.Mutex
	statuses []int
	attempts int
	onServe  func(attempt int)
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	status := s.statuses[min(attempt, len(s.statuses))-1]
	onServe := s.onServe
	s.mu.Unlock()

	if onServe != nil {
		onServe(attempt)
	}

	w.WriteHeader(status)
}

func (s *scriptedServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempts
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestDispatcher(t *testing.T, handler http.Handler, retryCount int, delay time.Duration) (*dispatcher, *sleepRecorder) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sleeper := &sleepRecorder{}

	return &dispatcher{
		http:        resty.New().SetBaseURL(server.URL),
		baseURL:     server.URL,
		retryCount:  retryCount,
		retryDelay:  delay,
		retryPolicy: DefaultRetryPolicy,
		logger:      &NoopLogger{},
		sleep:       sleeper.sleep,
	}, sleeper
}

func TestDispatcher_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	server := &scriptedServer{statuses: []int{503, 503, 200}}
	d, sleeper := newTestDispatcher(t, server, 3, 3*time.Second)

	resp, attempts, err := d.do(context.Background(), http.MethodPost, "/devices/data", []byte(`{}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, server.count())
	assert.Equal(t, []time.Duration{3 * time.Second, 4500 * time.Millisecond}, sleeper.waits)
}

func TestDispatcher_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	server := &scriptedServer{statuses: []int{502}}
	d, sleeper := newTestDispatcher(t, server, 3, 3*time.Second)

	_, _, err := d.do(context.Background(), http.MethodPost, "/devices/data", []byte(`{}`))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 3, server.count())
	assert.Equal(t, 3, apiErr.Attempts)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "502 (Bad Gateway)", apiErr.Message)
	assert.True(t, apiErr.Transient())
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Len(t, sleeper.waits, 2)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDispatcher_BackoffGrowsByHalf(t *testing.T) {
	t.Parallel()

	server := &scriptedServer{statuses: []int{504}}
	d, sleeper := newTestDispatcher(t, server, 5, time.Second)

	_, _, err := d.do(context.Background(), http.MethodGet, "/ping", nil)

	require.Error(t, err)
	assert.Equal(t, 5, server.count())
	assert.Equal(t, []time.Duration{
		time.Second,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
	}, sleeper.waits)
}

func TestDispatcher_NonTransientNotRetried(t *testing.T) {
	t.Parallel()

	for _, status := range []int{400, 401, 404, 429, 500} {
		server := &scriptedServer{statuses: []int{status, 200}}
		d, sleeper := newTestDispatcher(t, server, 3, time.Second)

		_, _, err := d.do(context.Background(), http.MethodPost, "/devices/data", []byte(`{}`))

		require.Error(t, err, "status %d", status)
		assert.Equal(t, 1, server.count(), "status %d", status)
		assert.Empty(t, sleeper.waits, "status %d", status)
		assert.Equal(t, KindAPI, KindOf(err), "status %d", status)
	}
}

func TestDispatcher_SingleAttempt(t *testing.T) {
	t.Parallel()

	server := &scriptedServer{statuses: []int{503, 200}}
	d, sleeper := newTestDispatcher(t, server, 1, time.Second)

	_, _, err := d.do(context.Background(), http.MethodPost, "/devices/data", []byte(`{}`))

	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 1, server.count())
	assert.Empty(t, sleeper.waits)
}

func TestDispatcher_CustomRetryPolicy(t *testing.T) {
	t.Parallel()

	server := &scriptedServer{statuses: []int{500, 200}}
	d, _ := newTestDispatcher(t, server, 3, 0)
	d.retryPolicy = func(r *resty.Response, err error) bool {
		return err == nil && r.StatusCode() == http.StatusInternalServerError
	}

	_, _, err := d.do(context.Background(), http.MethodPost, "/devices/data", []byte(`{}`))

	require.NoError(t, err)
	assert.Equal(t, 2, server.count())
}

func TestDispatcher_CancelledBeforeSend(t *testing.T) {
	t.Parallel()

	server := &scriptedServer{statuses: []int{200}}
	d, _ := newTestDispatcher(t, server, 3, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := d.do(ctx, http.MethodPost, "/devices/data", []byte(`{}`))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, 0, server.count())
}

func TestDispatcher_CancelledAfterFailureWinsOverRetry(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := &scriptedServer{statuses: []int{503}, onServe: func(int) { cancel() }}
	d, sleeper := newTestDispatcher(t, server, 3, time.Second)

	_, _, err := d.do(ctx, http.MethodPost, "/devices/data", []byte(`{}`))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, server.count())
	assert.Empty(t, sleeper.waits)
}

func TestDispatcher_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := &scriptedServer{statuses: []int{503}}
	d, _ := newTestDispatcher(t, server, 3, time.Second)
	d.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, _, err := d.do(ctx, http.MethodPost, "/devices/data", []byte(`{}`))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, server.count())
}

func TestDispatcher_TransportErrorNotRetried(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	sleeper := &sleepRecorder{}
	d := &dispatcher{
		http:        resty.New().SetBaseURL(url),
		baseURL:     url,
		retryCount:  3,
		retryDelay:  time.Second,
		retryPolicy: DefaultRetryPolicy,
		logger:      &NoopLogger{},
		sleep:       sleeper.sleep,
	}

	_, _, err := d.do(context.Background(), http.MethodPost, "/devices/data", []byte(`{}`))

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.MethodPost, transportErr.Method)
	assert.Equal(t, url+"/devices/data", transportErr.URL)
	assert.Empty(t, sleeper.waits)
}

func TestNewAPIError_Message(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"json message", 400, `{"message":"unknown device"}`, "unknown device"},
		{"json without message", 409, `{"error":"conflict"}`, "409 (Conflict)"},
		{"json array", 400, `["a"]`, "400 (Bad Request)"},
		{"plain text", 401, "nope", "401 (Unauthorized)"},
		{"empty body", 500, "", "500 (Internal Server Error)"},
		{"unknown status", 599, "", "599 (Unknown Status)"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _ := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), 1, 0)

			_, _, err := d.do(context.Background(), http.MethodGet, "/x", nil)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.body, string(apiErr.Response.Body()))
		})
	}
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     error
	}{
		{"json", "application/json", `{"status":"ok"}`, nil},
		{"json with charset", "Application/JSON; charset=utf-8", `{"status":"ok"}`, nil},
		{"wrong content type", "text/plain", `{"status":"ok"}`, ErrContract},
		{"missing content type", "", `{"status":"ok"}`, ErrContract},
		{"malformed json", "application/json", `{"status":`, ErrContract},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _ := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				} else {
					w.Header()["Content-Type"] = nil
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.body))
			}), 1, 0)

			var status ServiceStatus
			err := d.getJSON(context.Background(), "/ping", &status)

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "ok", status.Status)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, errors.Is(err, ErrValidation))
			assert.Contains(t, err.Error(), "invalid server response")
		})
	}
}

func TestDispatcher_ContractErrorCountsRetries(t *testing.T) {
	t.Parallel()

	server := &scriptedServer{statuses: []int{503, 200}}
	d, _ := newTestDispatcher(t, server, 3, time.Second)

	var status ServiceStatus
	err := d.getJSON(context.Background(), "/ping", &status)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, ErrContract)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, 2, apiErr.Attempts)
	assert.Equal(t, 2, server.count())
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
