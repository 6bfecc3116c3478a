package util

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Adapts slog to the retryablehttp leveled logger interface. Any configured secrets are masked out of logged values.
type LeveledSlog struct {
	inner  *slog.Logger
	redact []string
}

func (l LeveledSlog) clean(keysAndValues []interface{}) []interface{} {
	if len(l.redact) == 0 {
		return keysAndValues
	}
	out := make([]interface{}, len(keysAndValues))
	for i, v := range keysAndValues {
		s := fmt.Sprint(v)
		redacted := false
		for _, secret := range l.redact {
			if secret != "" && strings.Contains(s, secret) {
				s = strings.ReplaceAll(s, secret, "REDACTED")
				redacted = true
			}
		}
		if redacted {
			out[i] = s
		} else {
			out[i] = v
		}
	}
	return out
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l LeveledSlog) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, l.clean(keysAndValues)...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, l.clean(keysAndValues)...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, l.clean(keysAndValues)...)
}

// re-writes HTTP client DEBUG to INFO level (this is where retry is logged)
func (l LeveledSlog) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, l.clean(keysAndValues)...)
}

// Generates an HTTP client with decent general-purpose defaults around
// timeouts and retries. The returned client has the stdlib http.Client
// interface, but has Hashicorp retryablehttp logic internally.
//
// This client will retry on connection errors, 5xx status (except 501), and
// 429 Backoff requests (respecting 'Retry-After' header). It will log
// intermediate failures with WARN level. This does not start from
// http.DefaultClient.
//
// Strings passed as redact (eg, API tokens embedded in request URLs) are
// masked in log output.
func RobustHTTPClient(redact ...string) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{
		inner:  slog.Default().With("system", "http"),
		redact: redact,
	})
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	return client
}
