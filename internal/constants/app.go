package constants

import (
	"time"
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Monitoring
const (
	// DefaultPollInterval - delay between the end of one tick and the start of the next (5 seconds)
	DefaultPollInterval = 5 * time.Second

	// MinPollInterval - anything shorter hammers the server for no visible gain
	MinPollInterval = 250 * time.Millisecond

	// PlaceholderTransferID - id of the synthetic transfer injected when placeholder data is on.
	// A listing whose first record already carries this id is left alone.
	PlaceholderTransferID = "1"

	// PlaceholderPath - path shown for the synthetic transfer
	PlaceholderPath = "/placeholder"
)

// Retry configuration
const (
	// DefaultRetryMax - retries for idempotent reads; commands never retry
	DefaultRetryMax = 2

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (5s)
	// Kept below the poll interval so one slow tick does not swallow the next
	RetryMaxDelay = 5 * time.Second
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for API operations (30 seconds)
	APIContextTimeout = 30 * time.Second

	// APIConnectionTestTimeout - timeout for testing API connectivity (10 seconds)
	APIConnectionTestTimeout = 10 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)

// UI Updates
const (
	// ProgressUpdateInterval - interval for progress bar refreshes (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond
)

// Log files
const (
	// LogFileMaxSizeMB - rotate once the log file reaches this size
	LogFileMaxSizeMB = 10

	// LogFileMaxBackups - rotated files kept on disk
	LogFileMaxBackups = 5

	// LogFileMaxAgeDays - rotated files older than this are removed
	LogFileMaxAgeDays = 30
)
