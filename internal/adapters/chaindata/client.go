// Package chaindata fetches asset state and activity history from the
// marketplace GraphQL gateway.
package chaindata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
	"github.com/okian/axiesales/pkg/metrics"
)

const (
	defaultAttempts        = 3
	defaultBackoff         = 5 * time.Second
	defaultPageSize        = 50
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = time.Minute
	maxErrorBody           = 512

	opAssetData  = "get_asset_data"
	opActivities = "get_asset_activities"
)

// Client is a GraphQL client for the marketplace gateway. All calls share
// one circuit breaker.
type Client struct {
	url    string
	apiKey string
	http   *http.Client

	attempts int
	backoff  time.Duration
	pageSize int

	breakerFailures uint32
	breakerTimeout  time.Duration
	breaker         *gobreaker.CircuitBreaker

	logger logger.Logger
}

// New creates a Client for the gateway at url.
func New(url, apiKey string, opts ...Option) *Client {
	c := &Client{
		url:             url,
		apiKey:          apiKey,
		http:            &http.Client{Timeout: 15 * time.Second},
		attempts:        defaultAttempts,
		backoff:         defaultBackoff,
		pageSize:        defaultPageSize,
		breakerFailures: defaultBreakerFailures,
		breakerTimeout:  defaultBreakerTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("chaindata")
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chaindata",
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerFailures
		},
		// only provider-side trouble counts against the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrTransientFetch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateCircuitBreakerState(name, int(to))
			c.logger.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	return c
}

// GetAssetData returns the present-day view of an asset.
func (c *Client) GetAssetData(ctx context.Context, axieID int64) (model.Asset, error) {
	req := graphQLRequest{
		Query:         getAssetDataQuery,
		OperationName: "GetAxieData",
		Variables:     map[string]any{"axieId": fmt.Sprint(axieID)},
	}
	var data assetData
	if err := c.call(ctx, opAssetData, req, &data); err != nil {
		return model.Asset{}, fmt.Errorf("asset %d: %w", axieID, err)
	}
	if data.Axie == nil {
		return model.Asset{}, fmt.Errorf("%w: %d", ErrAssetNotFound, axieID)
	}
	return data.toAsset(axieID)
}

// GetAssetActivities returns the newest activities of an asset as reported,
// newest first. Ordering is not verified here.
func (c *Client) GetAssetActivities(ctx context.Context, axieID int64) (model.Activities, error) {
	req := graphQLRequest{
		Query:         getAssetActivitiesQuery,
		OperationName: "GetAxieActivities",
		Variables: map[string]any{
			"tokenAddress": assetContract,
			"tokenId":      axieID,
			"size":         c.pageSize,
		},
	}
	var data activitiesData
	if err := c.call(ctx, opActivities, req, &data); err != nil {
		return nil, fmt.Errorf("activities of %d: %w", axieID, err)
	}
	return data.toActivities(), nil
}

// call runs one GraphQL request with retries. Transient failures, including
// gateway error envelopes, are retried; the wait doubles after each one.
func (c *Client) call(ctx context.Context, op string, req graphQLRequest, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	delay := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		start := time.Now()
		_, lastErr = c.breaker.Execute(func() (interface{}, error) {
			return nil, c.post(ctx, body, out)
		})
		metrics.RecordProviderLatency(op, float64(time.Since(start).Milliseconds()))

		if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) {
			metrics.RecordProviderRequest(op, "rejected")
			return fmt.Errorf("%w: %w", ErrTransientFetch, lastErr)
		}
		if lastErr == nil {
			metrics.RecordProviderRequest(op, "ok")
			return nil
		}
		metrics.RecordProviderRequest(op, "error")
		if !errors.Is(lastErr, ErrTransientFetch) || attempt == c.attempts {
			break
		}

		c.logger.Warn(ctx, "chain data request failed; retrying",
			logger.String("operation", op),
			logger.Int("attempt", attempt),
			logger.Duration("backoff", delay),
			logger.Error(lastErr),
		)
		metrics.RecordProviderRetry(op)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	c.logger.Error(ctx, "chain data request failed",
		logger.String("operation", op),
		logger.Error(lastErr),
	)
	return lastErr
}

func (c *Client) post(ctx context.Context, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrRequest, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrTransientFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %w", ErrTransientFetch, err)
		}
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	// The gateway answers 200 with an error envelope or a cut-off body when
	// an upstream resolver fails, so both are retried.
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrTransientFetch, ErrDecode, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		if len(envelope.Errors) > 0 {
			return fmt.Errorf("%w: %w: %s", ErrTransientFetch, ErrRequest, envelope.Errors[0].Message)
		}
		return fmt.Errorf("%w: %w: empty data", ErrTransientFetch, ErrDecode)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
