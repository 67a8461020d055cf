package http

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/meridian-labs/transit/internal/constants"
)

// retryLogger adapts zerolog to the retryablehttp.LeveledLogger interface.
// Only warnings and errors are surfaced; per-attempt debug chatter is dropped.
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Fields(fieldsFromPairs(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Fields(fieldsFromPairs(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func fieldsFromPairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}

// NewRetryingClient wraps base with exponential-backoff retries for transient
// failures. This is the injected retry boundary beneath the transfer core:
// the coordinator and workers see only the final outcome of each request.
func NewRetryingClient(base *nethttp.Client) *nethttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = constants.MaxRetries
	rc.RetryWaitMin = constants.RetryInitialDelay
	rc.RetryWaitMax = constants.RetryMaxDelay
	rc.Logger = &retryLogger{}
	rc.CheckRetry = checkRetry
	return rc.StandardClient()
}

// checkRetry keeps the retry decision on our own classification instead of
// retryablehttp's default heuristics. Precondition failures (412, 304) are
// definitive server answers, never transient, and fall through to false.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return IsNetworkError(err), nil
	}
	return RetryableStatus(resp.StatusCode), nil
}

// RetryableStatus reports whether an HTTP status code represents a transient
// server-side failure worth another attempt.
func RetryableStatus(code int) bool {
	switch code {
	case nethttp.StatusTooManyRequests,
		nethttp.StatusInternalServerError,
		nethttp.StatusBadGateway,
		nethttp.StatusServiceUnavailable,
		nethttp.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsNetworkError reports whether an error looks like a connection-level
// failure rather than a server-side rejection. Classification is by message
// because errors cross the SDK boundaries as opaque wrapped values.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	networkIndicators := []string{
		"connection reset",
		"connection refused",
		"i/o timeout",
		"tls handshake timeout",
		"broken pipe",
		"eof",
		"no such host",
		"network is unreachable",
	}

	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
