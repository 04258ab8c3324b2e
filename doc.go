// Package client provides an HTTP client for the IoT analytics ingestion API.
//
// The client wraps [github.com/go-resty/resty/v2] with retries of transient
// gateway failures, typed errors, and pluggable logging. Device telemetry is
// sent as [DeviceRecord] values, either built directly or mapped from your
// own types with a [Mapper].
//
// # Basic Usage
//
//	c := client.New(os.Getenv("IOT_TOKEN"),
//	    client.WithRetryCount(5),
//	)
//
//	if err := c.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	now := time.Now()
//	record := client.NewDeviceRecord("thermostat-17", &now,
//	    client.Property{Name: "temperature", Value: 21.5},
//	)
//
//	if err := c.IngestDevice(ctx, record); err != nil {
//	    log.Fatal(err)
//	}
//
// # Mapping Types
//
// A [Mapper] is built once per type from field mappings and reused for every
// value:
//
//	mapper, err := client.NewMapper(
//	    client.IdentityField("Serial", func(s Sensor) any { return s.Serial }),
//	    client.TimestampField("ReadAt", func(s Sensor) *time.Time { return s.ReadAt }),
//	    client.PropertyField("Temperature", func(s Sensor) any { return s.Temperature }).Named("temp"),
//	)
//
//	err = client.IngestObjects(ctx, c, mapper, sensors)
//
// Bulk ingestion sends at most [MaxBatchSize] records per request, one
// request after another.
//
// # Configuration
//
// All configuration is supplied as [Option] functions passed to [New].
// Invalid values are silently ignored and the default is retained;
// all configuration is validated when [Client.Connect] is called. The
// options can not be changed afterwards.
//
// # Retry Behaviour
//
// A request is attempted up to the retry count (default 3) times.
// [DefaultRetryPolicy] retries HTTP 502, 503 and 504 only. The first retry
// waits the retry delay (default 3s) and every following wait is 50% longer.
// A cancelled context is never retried. Supply a custom function via
// [WithRetryPolicy] to override which failures are retried.
//
// # Errors
//
// Records are validated before anything is sent; failures match
// [ErrValidation]. Responses other than 2xx produce an [*APIError], which
// matches [ErrTransient] when retries of a 502, 503 or 504 ran out and
// [ErrContract] when a response could not be understood. [KindOf] classifies
// any returned error.
//
// # Logging
//
// Implement [RequestLogger] and supply it via [WithRequestLogger] to
// integrate with your logging library, or wrap a zerolog logger with
// [NewZerologLogger]. The default [NoopLogger] discards all log output.
package client
