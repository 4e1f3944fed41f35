package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Browser signatures rotated per request to keep traffic organic-looking.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

type ExecutorConfig struct {
	RequestsPerMinute int
	BurstSize         int
	// RequestDelay is the upper bound of the jittered pre-send delay;
	// the actual delay is uniform in [RequestDelay/2, RequestDelay].
	RequestDelay    time.Duration
	Timeout         time.Duration
	MaxAttempts     int
	MaxRetryTime    time.Duration
	RotateUserAgent bool
	// Proxies are egress proxy URLs rotated uniformly at random per
	// request. Empty means direct egress.
	Proxies []string
}

// Executor issues one outbound fetch at a time per caller: global token
// bucket, per-host politeness limit, robots.txt check, identity rotation,
// jittered delay, and bounded retry with exponential backoff.
type Executor struct {
	client       *http.Client
	bucket       *TokenBucket
	userAgents   []string
	rotateUA     bool
	baseDelay    time.Duration
	maxAttempts  int
	maxRetryTime time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	robots   map[string]*robotstxt.RobotsData
}

func NewExecutor(cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = time.Minute
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		Proxy:               proxyFunc(cfg.Proxies),
	}

	return &Executor{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		bucket:       NewTokenBucket(cfg.RequestsPerMinute, cfg.BurstSize),
		userAgents:   defaultUserAgents,
		rotateUA:     cfg.RotateUserAgent,
		baseDelay:    cfg.RequestDelay,
		maxAttempts:  cfg.MaxAttempts,
		maxRetryTime: cfg.MaxRetryTime,
		logger:       logger,
		limiters:     map[string]*rate.Limiter{},
		robots:       map[string]*robotstxt.RobotsData{},
	}
}

// proxyFunc picks a proxy uniformly at random per request, or nil for
// direct egress when no pool is configured.
func proxyFunc(raw []string) func(*http.Request) (*url.URL, error) {
	var pool []*url.URL
	for _, p := range raw {
		if u, err := url.Parse(p); err == nil && u.Host != "" {
			pool = append(pool, u)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	return func(*http.Request) (*url.URL, error) {
		return pool[rand.IntN(len(pool))], nil
	}
}

// Bucket exposes the shared rate limiter, mainly for tests and status.
func (e *Executor) Bucket() *TokenBucket {
	return e.bucket
}

// Get issues a GET against rawURL with the full acquire/rotate/retry cycle.
func (e *Executor) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	if !e.allowed(ctx, u) {
		return nil, &FetchError{Kind: Permanent, Err: fmt.Errorf("blocked by robots.txt: %s", u)}
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<(attempt-1))) * time.Millisecond
			if time.Since(start)+backoff > e.maxRetryTime {
				break
			}
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := e.attempt(ctx, u)
		if err == nil {
			return resp, nil
		}
		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
		e.logger.Debug("fetch attempt failed",
			zap.String("url", u.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if lastErr == nil {
		lastErr = &FetchError{Kind: Transient, Err: errors.New("retries exhausted")}
	}
	return nil, lastErr
}

func (e *Executor) attempt(ctx context.Context, u *url.URL) (*http.Response, error) {
	if err := e.bucket.Acquire(ctx); err != nil {
		return nil, err
	}
	if err := e.limiterFor(u.Hostname()).Wait(ctx); err != nil {
		return nil, err
	}

	// Random delay before sending so request spacing is not mechanical.
	jitter := e.baseDelay/2 + time.Duration(rand.Int64N(int64(e.baseDelay/2)+1))
	if err := sleepWithContext(ctx, jitter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{Kind: Transient, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, &FetchError{Kind: Transient, Status: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		resp.Body.Close()
		return nil, &FetchError{Kind: Permanent, Status: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
}

// GetJSON fetches rawURL and decodes the response body into v.
func (e *Executor) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := e.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &FetchError{Kind: Permanent, Status: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}

func (e *Executor) setHeaders(req *http.Request) {
	ua := e.userAgents[0]
	if e.rotateUA {
		ua = e.userAgents[rand.IntN(len(e.userAgents))]
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json, text/html, application/xhtml+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
}

func (e *Executor) limiterFor(host string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(time.Second), 2) // 1 req/s per host, burst 2
	e.limiters[host] = l
	return l
}

// allowed checks robots.txt for u, caching per host and failing open so
// an unreachable robots file never blocks a source.
func (e *Executor) allowed(ctx context.Context, u *url.URL) bool {
	data, err := e.robotsFor(ctx, u)
	if err != nil {
		return true
	}
	group := data.FindGroup(e.userAgents[0])
	if group == nil {
		group = data.FindGroup("*")
	}
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (e *Executor) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Hostname()
	e.mu.Lock()
	if data, ok := e.robots[host]; ok {
		e.mu.Unlock()
		return data, nil
	}
	e.mu.Unlock()

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.robots[host] = data
	e.mu.Unlock()
	return data, nil
}
