// Package spapi drives the SP-API Finances transaction-listing endpoint:
// cursor-based pagination with recovery from expired credentials, rate
// limiting, and transient server failures. Records are surfaced through a
// pull-based Source so the consumer controls fetch pace.
package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/spapi-finances-pipeline/internal/config"
)

// ErrPersistentAuth reports an authorization failure that survived one
// credential refresh. The fetcher never retries past that point: looping on
// a misconfigured credential would spin forever.
var ErrPersistentAuth = errors.New("persistent authorization failure")

const (
	defaultVersion     = "2024-06-19"
	backoffCeiling     = 60 * time.Second
	maxBackoffExponent = 6
)

// ListOptions are the filter parameters of one listing session.
// PostedAfter is required; everything else is optional.
type ListOptions struct {
	PostedAfter       string
	PostedBefore      string
	MarketplaceID     string
	TransactionStatus string
}

// Source is a lazy, finite, non-restartable sequence of raw transaction
// records. Next returns io.EOF once the sequence is exhausted; any other
// error is terminal for the sequence, though records already returned
// remain valid.
type Source interface {
	Next(ctx context.Context) (json.RawMessage, error)
}

// Client fetches transaction pages from the Finances listing endpoint
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	retryDelay time.Duration
	sleep      func(time.Duration)
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger, cfg *config.SPAPIConfig, tokens TokenProvider) *Client {
	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    fmt.Sprintf("https://%s/finances/%s/transactions", cfg.Host, version),
		tokens:     tokens,
		retryDelay: cfg.ServerRetryDelay,
		sleep:      time.Sleep,
		logger:     logger,
	}
}

// ListTransactions opens one logical listing session. The returned Source
// fetches the next page only when the current one is exhausted, so
// consumption drives fetch pace.
func (c *Client) ListTransactions(opts ListOptions) Source {
	return &transactionStream{client: c, opts: opts}
}

type listResponse struct {
	Transactions []json.RawMessage `json:"transactions"`
	NextToken    string            `json:"nextToken"`
}

type transactionStream struct {
	client *Client
	opts   ListOptions

	buf       []json.RawMessage
	nextToken string
	throttles int // consecutive rate-limit signals on the current page
	done      bool
	err       error
}

func (s *transactionStream) Next(ctx context.Context) (json.RawMessage, error) {
	for len(s.buf) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetchPage(ctx); err != nil {
			s.err = err
			return nil, err
		}
	}

	rec := s.buf[0]
	s.buf = s.buf[1:]
	return rec, nil
}

// fetchPage requests the page at the current cursor until it either lands
// or fails fatally. Rate limits and server errors retry the same page
// without bound; an authorization failure is retried exactly once after a
// credential refresh.
func (s *transactionStream) fetchPage(ctx context.Context) error {
	token, err := s.client.tokens.Token(ctx)
	if err != nil {
		return err
	}

	for {
		status, body, err := s.client.getPage(ctx, s.opts, s.nextToken, token)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusOK:
			s.throttles = 0
			return s.consumePage(body)

		case status == http.StatusForbidden || status == http.StatusUnauthorized:
			s.throttles = 0
			s.client.logger.Warn("Authorization failure, refreshing credential and retrying once", "status", status)
			token, err = s.client.tokens.Refresh(ctx)
			if err != nil {
				return err
			}
			status, body, err = s.client.getPage(ctx, s.opts, s.nextToken, token)
			if err != nil {
				return err
			}
			if status == http.StatusOK {
				return s.consumePage(body)
			}
			return fmt.Errorf("%w: status %d: %s", ErrPersistentAuth, status, body)

		case status == http.StatusTooManyRequests:
			s.throttles++
			delay := backoffDelay(s.throttles)
			s.client.logger.Warn("Rate limited, backing off", "attempt", s.throttles, "delay", delay.String())
			s.client.sleep(delay)

		case status >= 500:
			s.throttles = 0
			s.client.logger.Warn("Server error, retrying shortly", "status", status)
			s.client.sleep(s.client.retryDelay)

		default:
			return fmt.Errorf("unexpected SP-API response %d: %s", status, body)
		}
	}
}

// consumePage buffers the page's records and advances the cursor. A missing
// continuation token means this was the final page.
func (s *transactionStream) consumePage(body []byte) error {
	var page listResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to decode transactions page: %w", err)
		}
	}

	s.buf = append(s.buf, page.Transactions...)
	s.nextToken = page.NextToken
	if page.NextToken == "" {
		s.done = true
	}
	return nil
}

func (c *Client) getPage(ctx context.Context, opts ListOptions, nextToken, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build page request: %w", err)
	}

	q := req.URL.Query()
	q.Set("postedAfter", opts.PostedAfter)
	if opts.PostedBefore != "" {
		q.Set("postedBefore", opts.PostedBefore)
	}
	if opts.MarketplaceID != "" {
		q.Set("marketplaceId", opts.MarketplaceID)
	}
	if opts.TransactionStatus != "" {
		q.Set("transactionStatus", opts.TransactionStatus)
	}
	if nextToken != "" {
		q.Set("nextToken", nextToken)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read page response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// backoffDelay computes the wait after the given number of consecutive
// rate-limit signals: exponential growth with a small linear jitter term,
// capped at the ceiling.
func backoffDelay(attempt int) time.Duration {
	exp := attempt
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}

	secs := math.Exp2(float64(exp)) + 0.1*float64(attempt)
	delay := time.Duration(secs * float64(time.Second))
	if delay > backoffCeiling {
		delay = backoffCeiling
	}
	return delay
}
