package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Client is the single HTTP access primitive shared by all upstream clients.
// It applies a per-host token bucket, retries transient failures with capped
// exponential backoff, and surfaces typed errors. Safe for concurrent use
// from the worker pool.
type Client struct {
	httpClient  *http.Client
	logger      *logrus.Logger
	retryCount  int
	backoffBase time.Duration
	backoffCap  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rates    map[string]int
}

// ClientConfig configures the shared HTTP client.
type ClientConfig struct {
	Timeout     time.Duration
	RetryCount  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	DefaultRate int // requests per second for hosts without an explicit rate
}

// NewClient creates the shared rate-limited HTTP client.
func NewClient(config ClientConfig, logger *logrus.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = 500 * time.Millisecond
	}
	if config.BackoffCap == 0 {
		config.BackoffCap = 8 * time.Second
	}
	if config.DefaultRate == 0 {
		config.DefaultRate = 5
	}
	if logger == nil {
		logger = logrus.New()
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      logger,
		retryCount:  config.RetryCount,
		backoffBase: config.BackoffBase,
		backoffCap:  config.BackoffCap,
		limiters:    make(map[string]*rate.Limiter),
		rates:       make(map[string]int),
	}
	c.rates[""] = config.DefaultRate
	return c
}

// SetHostRate configures the token-bucket rate for a host.
func (c *Client) SetHostRate(host string, perSecond int) {
	if perSecond <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[host] = perSecond
	delete(c.limiters, host)
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lim, ok := c.limiters[host]; ok {
		return lim
	}
	perSecond, ok := c.rates[host]
	if !ok {
		perSecond = c.rates[""]
	}
	lim := rate.NewLimiter(rate.Limit(perSecond), perSecond)
	c.limiters[host] = lim
	return lim
}

// Get performs a rate-limited GET against host and returns the raw body.
// Callers needing TSV (UniProt search) or XML (NCBI) decode the bytes
// themselves; JSON callers use GetJSON.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, headers map[string]string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.NewContractViolation("url", err.Error())
	}
	if query != nil {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}

		if err := c.limiterFor(u.Host).Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", domain.ErrCancelled)
		}

		body, err := c.doOnce(ctx, u, headers)
		if err == nil {
			return body, nil
		}
		if domain.KindOf(err) != domain.ErrKindTransient {
			return nil, err
		}
		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"host":    u.Host,
			"attempt": attempt + 1,
		}).WithError(err).Warn("Transient upstream failure, will retry")
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, u *url.URL, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domain.NewContractViolation("request", err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pgx-knowledge-graph/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", u.Host, domain.ErrCancelled)
		}
		return nil, domain.NewTransientError(u.Host, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientError(u.Host, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		te := domain.NewTransientError(u.Host, resp.StatusCode, fmt.Errorf("rate limited"))
		te.Message = resp.Header.Get("Retry-After")
		return nil, te
	case resp.StatusCode >= 500:
		return nil, domain.NewTransientError(u.Host, resp.StatusCode, fmt.Errorf("server error"))
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewNotFoundError(u.Host, u.Path)
	default:
		return nil, domain.NewPermanentError(u.Host, resp.StatusCode, string(body))
	}
}

// sleepBackoff waits before a retry. A parsable Retry-After on the previous
// 429 takes precedence over the exponential schedule.
func (c *Client) sleepBackoff(ctx context.Context, attempt int, lastErr error) error {
	delay := time.Duration(float64(c.backoffBase) * math.Pow(2, float64(attempt-1)))
	if delay > c.backoffCap {
		delay = c.backoffCap
	}
	if ue, ok := lastErr.(*domain.UpstreamError); ok && ue.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(ue.Message); err == nil && secs > 0 {
			ra := time.Duration(secs) * time.Second
			if ra < c.backoffCap {
				delay = ra
			} else {
				delay = c.backoffCap
			}
		}
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", domain.ErrCancelled)
	}
}

// GetJSON performs Get and decodes the body into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, headers map[string]string, target interface{}) error {
	body, err := c.Get(ctx, rawURL, query, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		u, _ := url.Parse(rawURL)
		host := rawURL
		if u != nil {
			host = u.Host
		}
		return domain.NewMalformedError(host, err)
	}
	return nil
}
