package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	pingPath       = "/ping"
	devicePath     = "/devices/data"
	deviceBulkPath = "/devices/data/bulk"
)

// Client sends device telemetry to the ingestion API. Create it with [New]
// and call [Client.Connect] before ingesting. Options are fixed at
// construction, so a connected Client is safe for concurrent use.
type Client struct {
	token     string
	options   *Options
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	mu        sync.Mutex
	transport *http.Transport
	dispatch  *dispatcher
}

// ServiceStatus is the body returned by the ping endpoint.
type ServiceStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// New returns a Client authenticating with token. Invalid option values are
// ignored and the default is kept; configuration is validated by Connect.
func New(token string, opts ...Option) *Client {
	options := newClientOptions()

	for _, opt := range opts {
		opt(options)
	}

	return &Client{
		token:   strings.TrimSpace(token),
		options: options,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Connect validates the configuration, prepares the HTTP transport and pings
// the service. Once it has succeeded further calls are no-ops.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return errNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dispatch != nil {
		return nil
	}

	if c.token == "" {
		return errEmptyToken
	}

	if err := c.options.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	transport, err := newTransport(c.options.timeout)
	if err != nil {
		return fmt.Errorf("failed to configure transport: %w", err)
	}

	httpClient := resty.New().
		SetTransport(transport).
		SetBaseURL(c.options.baseURL).
		SetTimeout(c.options.timeout).
		SetLogger(c.options.requestLogger).
		SetHeaders(c.options.requestHeaders).
		SetAuthScheme(c.options.authScheme).
		SetAuthToken(c.token).
		SetRetryCount(0)

	d := &dispatcher{
		http:        httpClient,
		baseURL:     c.options.baseURL,
		retryCount:  c.options.retryCount,
		retryDelay:  c.options.retryDelay,
		retryPolicy: c.options.retryPolicy,
		logger:      c.options.requestLogger,
		sleep:       c.sleep,
	}

	if _, err := d.ping(ctx); err != nil {
		transport.CloseIdleConnections()
		return fmt.Errorf("failed to ping ingestion API: %w", err)
	}

	c.transport = transport
	c.dispatch = d

	return nil
}

// Close releases idle connections. The client can not be used afterwards
// without calling Connect again.
func (c *Client) Close() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}

	c.transport = nil
	c.dispatch = nil
}

// Ping asks the service for its status.
func (c *Client) Ping(ctx context.Context) (*ServiceStatus, error) {
	d, err := c.connected()
	if err != nil {
		return nil, err
	}

	return d.ping(ctx)
}

func (d *dispatcher) ping(ctx context.Context) (*ServiceStatus, error) {
	var status ServiceStatus

	if err := d.getJSON(ctx, pingPath, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// IngestDevice validates record and sends it.
func (c *Client) IngestDevice(ctx context.Context, record DeviceRecord) error {
	d, err := c.connected()
	if err != nil {
		return err
	}

	if err := record.Validate(c.now()); err != nil {
		return err
	}

	if _, err := d.postJSON(ctx, devicePath, record); err != nil {
		return fmt.Errorf("failed to ingest device %q: %w", record.ID(), err)
	}

	return nil
}

// IngestDevices validates every record, then sends them in chunks of at most
// [MaxBatchSize], one request per chunk, in input order. An empty slice
// sends nothing. Chunks already accepted are not rolled back when a later
// chunk fails.
func (c *Client) IngestDevices(ctx context.Context, records []DeviceRecord) error {
	d, err := c.connected()
	if err != nil {
		return err
	}

	if err := validateRecords(records, c.now()); err != nil {
		return err
	}

	return forEachChunk(records, MaxBatchSize, func(offset int, chunk []DeviceRecord) error {
		if _, err := d.postJSON(ctx, deviceBulkPath, chunk); err != nil {
			return fmt.Errorf("failed to ingest records %d-%d: %w", offset, offset+len(chunk)-1, err)
		}

		return nil
	})
}

func (c *Client) connected() (*dispatcher, error) {
	if c == nil {
		return nil, errNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dispatch == nil {
		return nil, errNotConnected
	}

	return c.dispatch, nil
}
