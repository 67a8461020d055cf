package constants

import (
	"time"
)

// Transfer thresholds
const (
	// SingleShotThreshold - objects at or below this size are transferred
	// in one request instead of being chunked (64 MB)
	SingleShotThreshold = 64 * 1024 * 1024

	// ChunkSize - default size of each chunk for uploads and downloads (16 MB)
	//
	// Trade-offs:
	// - Smaller chunks = more HTTP requests but better progress granularity
	// - Larger chunks = better throughput but coarser progress updates
	ChunkSize = 16 * 1024 * 1024

	// MinChunkSize - minimum sensible chunk size (1 MB)
	// Below this the per-request overhead dominates throughput.
	MinChunkSize = 1 * 1024 * 1024

	// MaxChunkSize - maximum chunk size (256 MB)
	// Caps per-worker memory usage; each in-flight chunk is buffered whole.
	MaxChunkSize = 256 * 1024 * 1024

	// MaxChunkCount - S3 caps multipart uploads at 10,000 parts; Azure block
	// blobs at 50,000 blocks. We enforce the stricter of the two.
	MaxChunkCount = 10000
)

// Concurrency
const (
	// DefaultConcurrency - default number of concurrent chunk workers
	DefaultConcurrency = 4

	// MaxConcurrency - upper bound on concurrent chunk workers per transfer
	MaxConcurrency = 32
)

// Retry configuration for the transport layer beneath the coordinator.
// The coordinator itself never retries; each dispatched request is already
// retried according to these settings before the worker sees the outcome.
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 10

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// HTTP client tuning
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	// Extended for slow networks and high concurrency
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPRequestTimeout - overall per-request timeout (5 minutes)
	// Long enough for one full chunk on a slow link; the wall-clock budget
	// for the whole transfer is enforced by the coordinator, not here.
	HTTPRequestTimeout = 5 * time.Minute
)

// Pagination safety limits
const (
	// MaxPaginationPages - maximum pages to fetch before stopping (prevents
	// infinite loops against a server that keeps returning tokens).
	// At 100 items/page this allows up to 100,000 items.
	MaxPaginationPages = 1000

	// DefaultPageSize - default results-per-page hint for listings.
	// The server may return fewer or more items per page.
	DefaultPageSize = 100
)

// Progress reporting
const (
	// ProgressTickInterval - interval for throttled progress bar updates (300ms)
	ProgressTickInterval = 300 * time.Millisecond
)

// Resume state
const (
	// ResumeStateMaxAge - resume state older than this is discarded (7 days)
	// Chunked-upload sessions on the server side expire on roughly this scale.
	ResumeStateMaxAge = 7 * 24 * time.Hour
)
