package influxdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"

	"github.com/nerrad567/mysa-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	// maxRetries is how often a batch that failed for a transient reason
	// (unreachable server, 429, 5xx) is resent before it is discarded.
	maxRetries = 3

	// retryBufferPoints caps the points held for resending. The oldest
	// batch goes first when it is full.
	retryBufferPoints = 10_000

	applicationName = "mysa-core"
)

// SinkStats counts telemetry sink activity.
type SinkStats struct {
	Points   uint64 `json:"points"`   // queued for writing
	Skipped  uint64 `json:"skipped"`  // offered after Close
	Retried  uint64 `json:"retried"`  // transient batch failures kept for resending
	Rejected uint64 `json:"rejected"` // batches the server refused outright
	Failed   uint64 `json:"failed"`   // batches that failed for any other reason
}

// Client is the telemetry sink. It records decoded batch readings and
// accepted numeric state changes through a batching, non-blocking writer.
//
// All methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	bucket string

	closed atomic.Bool

	points, skipped, retried, rejected, failed atomic.Uint64

	mu      sync.RWMutex
	onError func(err error)

	errorsDone chan struct{}
}

// Connect pings the server and sets up the writer.
//
// Returns:
//   - *Client: sink ready for WriteReading and WriteStateEvent
//   - error: ErrDisabled when influxdb.enabled is false, or
//     ErrConnectionFailed when the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := influx.Ping(pingCtx)
	if err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		influx.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		influx:     influx,
		writer:     influx.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:     cfg.Bucket,
		errorsDone: make(chan struct{}),
	}
	c.writer.SetWriteFailedCallback(c.writeFailed)
	go c.watchErrors(c.writer.Errors())

	return c, nil
}

// clientOptions builds writer options: second precision (readings carry
// whole-second device timestamps), bounded retries and config batching.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	return influxdb2.DefaultOptions().
		SetApplicationName(applicationName).
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flushInterval) * uint(time.Second/time.Millisecond)).
		SetPrecision(time.Second).
		SetMaxRetries(maxRetries).
		SetRetryBufferLimit(retryBufferPoints)
}

// writeFailed is called for batches that failed transiently. Returning
// true keeps the batch for resending.
func (c *Client) writeFailed(_ string, _ influxhttp.Error, _ uint) bool {
	c.retried.Add(1)
	return true
}

// watchErrors classifies asynchronous write errors until the writer
// closes its error channel.
func (c *Client) watchErrors(errs <-chan error) {
	defer close(c.errorsDone)
	for err := range errs {
		err = c.classify(err)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// classify wraps a write error in ErrWriteRejected when the server refused
// the batch itself (bad line protocol, field type conflict, bad token or
// bucket), and in ErrWriteFailed otherwise.
func (c *Client) classify(err error) error {
	var he *influxhttp.Error
	if errors.As(err, &he) && rejected(he.StatusCode) {
		c.rejected.Add(1)
		return fmt.Errorf("%w: bucket %s: status %d: %w", ErrWriteRejected, c.bucket, he.StatusCode, err)
	}
	c.failed.Add(1)
	return fmt.Errorf("%w: bucket %s: %w", ErrWriteFailed, c.bucket, err)
}

func rejected(status int) bool {
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError &&
		status != http.StatusTooManyRequests
}

// Close flushes pending points and closes the client. Calling it again is
// a no-op.
func (c *Client) Close() error {
	if c.influx == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writer.Flush()
	c.influx.Close()
	<-c.errorsDone

	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.influx.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return errors.New("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	return !c.closed.Load()
}

// SetOnError sets the callback for asynchronous write failures. It
// receives errors wrapping ErrWriteRejected or ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Stats returns sink counters.
func (c *Client) Stats() SinkStats {
	return SinkStats{
		Points:   c.points.Load(),
		Skipped:  c.skipped.Load(),
		Retried:  c.retried.Load(),
		Rejected: c.rejected.Load(),
		Failed:   c.failed.Load(),
	}
}

// Flush blocks until buffered points are written. It is a no-op after
// Close.
func (c *Client) Flush() {
	if c.writer == nil || !c.IsConnected() {
		return
	}
	c.writer.Flush()
}
