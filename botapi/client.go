package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tgwarden/warden/util"

	"github.com/carlmjohnson/versioninfo"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const DefaultHost = "https://api.telegram.org"

type Client struct {
	// Client is an HTTP client to use. If not set, defaults to util.RobustHTTPClient().
	Client *http.Client
	Host   string
	Token  string
	// outbound request budget (optional)
	Limiter *rate.Limiter
	// trips after repeated server-side failures (optional)
	Breaker   *gobreaker.CircuitBreaker
	UserAgent *string
}

// Builds a client with a retrying HTTP client, a rate limiter of rps requests per second (disabled if rps <= 0), and a circuit breaker.
func NewClient(host, token string, rps float64) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		Client:  util.RobustHTTPClient(token),
		Host:    host,
		Token:   token,
		Breaker: NewBreaker("botapi", 30*time.Second, 5),
	}
	if rps > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return c
}

// Circuit breaker which opens after maxFailures consecutive failed requests. Client errors (4xx other than 429) count as successes: the API is up, the request was just wrong.
func NewBreaker(name string, timeout time.Duration, maxFailures uint32) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *Error
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500 && !apiErr.IsThrottled()
			}
			return errors.Is(err, context.Canceled)
		},
	})
}

// Failure reported by the Bot API itself (ok=false).
type Error struct {
	StatusCode  int
	Description string
	// set when the API asks the client to back off
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("bot API error %d: %s (retry after %s)", e.StatusCode, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("bot API error %d: %s", e.StatusCode, e.Description)
}

func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type responseEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return util.RobustHTTPClient(c.Token)
	}
	return c.Client
}

// Calls a Bot API method with a JSON body, decoding the "result" field into out (if non-nil).
func (c *Client) Do(ctx context.Context, method string, body any, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limit: %w", err)
		}
	}
	start := time.Now()
	var err error
	if c.Breaker != nil {
		_, err = c.Breaker.Execute(func() (any, error) {
			return nil, c.do(ctx, method, body, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("breaker (%s): %w", c.Breaker.Name(), err)
		}
	} else {
		err = c.do(ctx, method, body, out)
	}
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	requestCount.WithLabelValues(method, statusLabel(err)).Inc()
	return err
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.StatusCode)
	}
	return "error"
}

func (c *Client) do(ctx context.Context, method string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	uri := c.Host + "/bot" + c.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, rdr)
	if err != nil {
		// the url embeds the token; never echo it
		return fmt.Errorf("building %s request failed", method)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != nil {
		req.Header.Set("User-Agent", *c.UserAgent)
	} else {
		req.Header.Set("User-Agent", "warden/"+versioninfo.Short())
	}

	resp, err := c.getClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, c.redact(err))
	}
	defer resp.Body.Close()

	var env responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &Error{
			StatusCode:  resp.StatusCode,
			Description: fmt.Sprintf("failed to decode response: %s", err),
		}
	}
	if !env.OK {
		apiErr := &Error{
			StatusCode:  env.ErrorCode,
			Description: env.Description,
		}
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode
		}
		if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// Transport errors quote the request URL, which embeds the token. The wrapped error is kept for errors.Is/As.
type redactedError struct {
	msg   string
	inner error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.inner }

func (c *Client) redact(err error) error {
	msg := err.Error()
	if c.Token == "" || !strings.Contains(msg, c.Token) {
		return err
	}
	return &redactedError{
		msg:   strings.ReplaceAll(msg, c.Token, "REDACTED"),
		inner: err,
	}
}
