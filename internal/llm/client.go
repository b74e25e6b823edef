package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Transport performs exactly one call to the generation service.
type Transport interface {
	Call(ctx context.Context, req Request) Outcome
}

type Settings struct {
	APIMode string
	BaseURL string
	Model   string
	APIKey  string
}

// NewTransport picks the transport for an API mode: "sdk" uses openai-go,
// "http" posts JSON directly.
func NewTransport(s Settings, httpClient *http.Client) (Transport, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, fmt.Errorf("API キーが空です")
	}
	if strings.TrimSpace(s.Model) == "" {
		return nil, fmt.Errorf("model が設定されていません")
	}
	switch strings.ToLower(strings.TrimSpace(s.APIMode)) {
	case "", "http":
		return NewHTTPTransport(s.BaseURL, s.Model, s.APIKey, httpClient), nil
	case "sdk":
		return NewSDKTransport(s.BaseURL, s.Model, s.APIKey, httpClient), nil
	default:
		return nil, fmt.Errorf("api_mode に対応していません：%s", s.APIMode)
	}
}

type Options struct {
	Attempts          int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            float64
	AttemptTimeout    time.Duration
	RequestsPerMinute int
	OnRetry           func(attempt int, wait time.Duration, err error)
}

// Client wraps a Transport with the retry/backoff policy. Every Invoke is a
// fresh call; nothing is cached.
type Client struct {
	transport Transport
	opts      Options
	limiter   *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewClient(t Transport, opts Options) *Client {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 60 * time.Second
	}
	c := &Client{transport: t, opts: opts, sleep: sleepContext}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

func (c *Client) Invoke(ctx context.Context, req Request) (string, error) {
	if c == nil || c.transport == nil {
		return "", fmt.Errorf("生成クライアントが初期化されていません")
	}
	out := withExponentialBackoff(ctx, retryOptions{
		Attempts:  c.opts.Attempts,
		BaseDelay: c.opts.BaseDelay,
		MaxDelay:  c.opts.MaxDelay,
		Jitter:    c.opts.Jitter,
		Sleep:     c.sleep,
		OnRetry:   c.opts.OnRetry,
	}, func(attempt int) Outcome {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fatal(err)
			}
		}
		actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()
		out := c.transport.Call(actx, req)
		if out.Kind != Success && ctx.Err() != nil {
			return fatal(ctx.Err())
		}
		return out
	})
	if out.Kind != Success {
		return "", out.Err
	}
	return out.Text, nil
}
