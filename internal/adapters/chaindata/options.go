package chaindata

import (
	"net/http"
	"time"

	"github.com/okian/axiesales/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRetry sets the number of attempts per call and the initial backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// WithBreaker opens the circuit after maxFailures consecutive transient
// failures and keeps it open for openTimeout.
func WithBreaker(maxFailures int, openTimeout time.Duration) Option {
	return func(c *Client) {
		if maxFailures > 0 {
			c.breakerFailures = uint32(maxFailures)
		}
		if openTimeout > 0 {
			c.breakerTimeout = openTimeout
		}
	}
}

// WithPageSize sets how many activities are requested per asset.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
