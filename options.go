package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the ingestion API used when [WithBaseURL] is not supplied.
	DefaultBaseURL = "https://ingest.iotanalytics.cloud/api/v1"

	// DefaultAuthScheme prefixes the token in the Authorization header.
	DefaultAuthScheme = "Token"

	maxRetryCount = 100
	maxRetryDelay = 5 * time.Minute
	minTimeout    = time.Second
	maxTimeout    = 10 * time.Minute
)

type Option func(*Options)

type Options struct {
	baseURL        string
	retryCount     int
	retryDelay     time.Duration
	timeout        time.Duration
	requestLogger  RequestLogger
	retryPolicy    func(*resty.Response, error) bool
	requestHeaders map[string]string
	authScheme     string
}

func newClientOptions() *Options {
	return &Options{
		baseURL:       DefaultBaseURL,
		retryCount:    3,
		retryDelay:    3 * time.Second,
		timeout:       100 * time.Second,
		requestLogger: &NoopLogger{},
		retryPolicy:   DefaultRetryPolicy,
		requestHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		authScheme: DefaultAuthScheme,
	}
}

// WithBaseURL overrides [DefaultBaseURL]. Trailing slashes are removed.
func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if baseURL != "" {
			o.baseURL = baseURL
		}
	}
}

// WithRetryCount sets the total number of attempts per request, including the
// first one. Values below 1 are ignored.
func WithRetryCount(count int) Option {
	return func(o *Options) {
		if count >= 1 {
			o.retryCount = count
		}
	}
}

// WithRetryDelay sets the wait before the first retry. Each further retry
// waits 50% longer than the previous one.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *Options) {
		if delay >= 0 {
			o.retryDelay = delay
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= minTimeout {
			o.timeout = timeout
		}
	}
}

func WithRequestLogger(logger RequestLogger) Option {
	return func(o *Options) {
		if logger != nil {
			o.requestLogger = logger
		}
	}
}

func WithRetryPolicy(policy func(*resty.Response, error) bool) Option {
	return func(o *Options) {
		if policy != nil {
			o.retryPolicy = policy
		}
	}
}

func WithRequestHeader(header, value string) Option {
	return func(o *Options) {
		header = strings.TrimSpace(header)

		if header == "" ||
			strings.EqualFold(header, "Content-Type") ||
			strings.EqualFold(header, "Accept") ||
			strings.EqualFold(header, "Authorization") {
			return
		}

		o.requestHeaders[header] = value
	}
}

func WithAuthScheme(scheme string) Option {
	return func(o *Options) {
		scheme = strings.TrimSpace(scheme)
		if scheme != "" {
			o.authScheme = scheme
		}
	}
}

// Validate reports the first invalid setting. It is called by [Client.Connect].
func (o *Options) Validate() error {
	if o.baseURL == "" {
		return errors.New("base URL must be set")
	}

	u, err := url.Parse(o.baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base URL %q must be an absolute URL", o.baseURL)
	}

	if o.retryCount < 1 {
		return errors.New("retryCount must be at least 1")
	}

	if o.retryCount > maxRetryCount {
		return fmt.Errorf("retryCount must not exceed %d", maxRetryCount)
	}

	if o.retryDelay < 0 {
		return errors.New("retryDelay must be non-negative")
	}

	if o.retryDelay > maxRetryDelay {
		return fmt.Errorf("retryDelay must not exceed %v", maxRetryDelay)
	}

	if o.timeout < minTimeout {
		return fmt.Errorf("timeout must be at least %v", minTimeout)
	}

	if o.timeout > maxTimeout {
		return fmt.Errorf("timeout must not exceed %v", maxTimeout)
	}

	if o.requestLogger == nil {
		return errors.New("requestLogger must not be nil")
	}

	if o.retryPolicy == nil {
		return errors.New("retryPolicy must not be nil")
	}

	if o.authScheme == "" {
		return errors.New("authScheme must not be empty")
	}

	return nil
}
