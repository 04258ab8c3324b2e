package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const jsonMediaType = "application/json"

// dispatcher sends one logical request and retries transient failures with a
// backoff that grows by half of itself after every wait.
type dispatcher struct {
	http        *resty.Client
	baseURL     string
	retryCount  int
	retryDelay  time.Duration
	retryPolicy func(*resty.Response, error) bool
	logger      RequestLogger
	sleep       func(ctx context.Context, d time.Duration) error
}

// do performs the exchange. A 2xx response is returned untouched together
// with the number of attempts it took. The request context is checked before every attempt and after every failure, so a
// cancelled context always wins over a pending retry.
func (d *dispatcher) do(ctx context.Context, method, path string, body []byte) (*resty.Response, int, error) {
	delay := d.retryDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, fmt.Errorf("%s %s cancelled before attempt %d: %w", method, path, attempt, err)
		}

		req := d.http.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}

		resp, err := req.Execute(method, path)
		if err == nil && resp.IsSuccess() {
			return resp, attempt, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempt, fmt.Errorf("%s %s cancelled after attempt %d: %w", method, path, attempt, ctxErr)
		}

		failure := d.failure(method, path, resp, err, attempt)

		if attempt >= d.retryCount || !d.retryPolicy(resp, err) {
			d.logger.Debugf("%s %s failed after %d attempt(s): %v", method, path, attempt, failure)
			return nil, attempt, failure
		}

		d.logger.Warnf("%s %s attempt %d/%d failed: %v; retrying in %v", method, path, attempt, d.retryCount, failure, delay)

		if err := d.sleep(ctx, delay); err != nil {
			return nil, attempt, fmt.Errorf("%s %s cancelled while waiting to retry: %w", method, path, err)
		}

		delay += delay / 2
	}
}

func (d *dispatcher) failure(method, path string, resp *resty.Response, err error, attempt int) error {
	if err != nil {
		return &TransportError{Method: method, URL: d.baseURL + path, Err: err}
	}

	return newAPIError(resp, attempt)
}

// newAPIError prefers the "message" field of a JSON error body and falls back
// to the numeric and textual status.
func newAPIError(resp *resty.Response, attempts int) *APIError {
	message := statusMessage(resp.StatusCode())

	var payload struct {
		Message string `json:"message"`
	}

	if err := json.Unmarshal(resp.Body(), &payload); err == nil && payload.Message != "" {
		message = payload.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode(),
		Message:    message,
		Attempts:   attempts,
		Response:   resp,
	}
}

func (d *dispatcher) postJSON(ctx context.Context, path string, payload any) (*resty.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, _, err := d.do(ctx, http.MethodPost, path, body)

	return resp, err
}

func (d *dispatcher) getJSON(ctx context.Context, path string, out any) error {
	resp, attempts, err := d.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	return decodeJSON(resp, attempts, out)
}

// decodeJSON requires a JSON content type before decoding the body into out.
func decodeJSON(resp *resty.Response, attempts int, out any) error {
	contentType := strings.ToLower(strings.TrimSpace(resp.Header().Get("Content-Type")))
	if !strings.HasPrefix(contentType, jsonMediaType) {
		return newContractError(resp, attempts)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return newContractError(resp, attempts)
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
