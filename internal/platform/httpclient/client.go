// Package httpclient provides the outbound HTTP transport shared by the chat SDKs.
//
// Both discordgo and go-telegram/bot accept a plain *http.Client; Standard wraps
// Client so their requests get retry with backoff for idempotent calls and
// request logging with bot tokens stripped from URLs.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	randv2 "math/rand/v2"
	"net"
	stdhttp "net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"syscall"
	"time"
)

// Client wraps http.Client with logging and retries.
type Client struct {
	hc               *stdhttp.Client
	log              *slog.Logger
	retries          int
	baseBackoff      time.Duration
	maxBackoff       time.Duration
	maxRetryDuration time.Duration
	maxReplayBody    int64
	urlRedactor      func(*url.URL) string
	idempotent       map[string]struct{}
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per attempt timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries enables n retries with exponential backoff and jitter.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff caps a single wait between attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// WithMaxRetryDuration limits total time spent on retries.
func WithMaxRetryDuration(d time.Duration) Option {
	return func(c *Client) { c.maxRetryDuration = d }
}

// WithURLRedactor sets how URLs are rendered in logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// New creates a configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ExpectContinueTimeout = time.Second

	c := &Client{
		hc:            &stdhttp.Client{Timeout: 30 * time.Second, Transport: tr},
		log:           slog.Default(),
		baseBackoff:   200 * time.Millisecond,
		maxBackoff:    5 * time.Second,
		maxReplayBody: 1 << 20,
		urlRedactor:   RedactBotToken,
		idempotent: map[string]struct{}{
			stdhttp.MethodGet:     {},
			stdhttp.MethodHead:    {},
			stdhttp.MethodOptions: {},
			stdhttp.MethodPut:     {},
			stdhttp.MethodDelete:  {},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ErrReplayBodyTooLarge indicates request body exceeds replay limit.
var ErrReplayBodyTooLarge = errors.New("http: body too large for replay")

var botTokenPath = regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+`)

// RedactBotToken renders u without credentials, masking a Telegram bot token in the path.
func RedactBotToken(u *url.URL) string {
	return botTokenPath.ReplaceAllString(u.Redacted(), "/bot<redacted>")
}

// Standard returns an *http.Client that sends every request through c.
func (c *Client) Standard() *stdhttp.Client {
	return &stdhttp.Client{Transport: c}
}

// RoundTrip implements http.RoundTripper using the request's context.
func (c *Client) RoundTrip(req *stdhttp.Request) (*stdhttp.Response, error) {
	return c.Do(req.Context(), req)
}

// Do sends req with logging, retrying idempotent methods on transient failures.
// POST is retried only when it carries an Idempotency-Key header.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	if err := c.bufferBody(req); err != nil {
		return nil, err
	}
	retries := c.retries
	if !c.retryable(req) {
		retries = 0
	}

	u := c.urlRedactor(req.URL)
	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			rc, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = rc
		}
		st := time.Now()
		resp, err := c.hc.Do(r)
		dur := time.Since(st)
		delay, retry := retryInfo(resp, err)
		if !retry || attempt > retries {
			if err != nil {
				c.log.Warn("http request error", slog.String("method", r.Method), slog.String("url", u), slog.Int("attempt", attempt), slog.Any("error", redactErr(err, c.urlRedactor)))
				return nil, redactErr(err, c.urlRedactor)
			}
			if retry {
				// Out of attempts: hand the final response back untouched.
				c.log.Warn("http request status", slog.String("method", r.Method), slog.String("url", u), slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt))
				return resp, nil
			}
			c.log.Debug("http request", slog.String("method", r.Method), slog.String("url", u), slog.Int("status", resp.StatusCode), slog.Duration("dur", dur), slog.Int("attempt", attempt))
			return resp, nil
		}
		drainAndClose(resp)

		wait := c.backoff(attempt, delay)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return nil, context.DeadlineExceeded
		}
		if c.maxRetryDuration > 0 && time.Since(start)+wait > c.maxRetryDuration {
			if lastErr == nil {
				lastErr = fmt.Errorf("%s %s: retry budget exceeded", r.Method, u)
			}
			return nil, fmt.Errorf("retry budget exceeded: %w", lastErr)
		}
		if err != nil {
			lastErr = redactErr(err, c.urlRedactor)
		} else {
			lastErr = fmt.Errorf("%s %s: unexpected status %d", r.Method, u, resp.StatusCode)
		}
		c.log.Warn("http request retry", slog.String("method", r.Method), slog.String("url", u), slog.Int("attempt", attempt), slog.Duration("wait", wait), slog.Any("error", lastErr))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (c *Client) retryable(req *stdhttp.Request) bool {
	if _, ok := c.idempotent[req.Method]; ok {
		return true
	}
	return req.Method == stdhttp.MethodPost && req.Header.Get("Idempotency-Key") != ""
}

func (c *Client) backoff(attempt int, delay time.Duration) time.Duration {
	wait := delay
	if wait <= 0 {
		wait = c.baseBackoff * time.Duration(1<<uint(attempt-1))
		if wait > 0 {
			wait += time.Duration(randv2.Int64N(int64(wait)))
		}
	}
	if c.maxBackoff > 0 && wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}

// bufferBody makes req replayable so retries can resend the body.
func (c *Client) bufferBody(req *stdhttp.Request) error {
	if req.Body == nil || req.Body == stdhttp.NoBody || req.GetBody != nil {
		return nil
	}
	defer req.Body.Close()
	var src io.Reader = req.Body
	if c.maxReplayBody > 0 {
		src = io.LimitReader(req.Body, c.maxReplayBody+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if c.maxReplayBody > 0 && int64(len(body)) > c.maxReplayBody {
		return ErrReplayBodyTooLarge
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Body, _ = req.GetBody()
	return nil
}

// redactErr strips the token from a *url.Error so it never reaches logs or callers.
func redactErr(err error, redact func(*url.URL) string) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if parsed, perr := url.Parse(ue.URL); perr == nil {
		ue.URL = redact(parsed)
	}
	return err
}

// retryAfter parses a Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}

func drainAndClose(resp *stdhttp.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 512<<10)
	_ = resp.Body.Close()
}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var se *os.SyscallError
	if errors.As(err, &se) {
		switch se.Err {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
			syscall.ENETDOWN, syscall.ENETUNREACH, syscall.EPIPE,
			syscall.EHOSTUNREACH, syscall.ETIMEDOUT:
			return true
		}
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsTemporary
}

// retryInfo reports whether the attempt should be retried and an optional server supplied delay.
func retryInfo(resp *stdhttp.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, isRetryableError(err)
	}
	switch {
	case resp.StatusCode == 408, resp.StatusCode == 425:
		return 0, true
	case resp.StatusCode == 429, resp.StatusCode >= 500:
		return retryAfter(resp.Header.Get("Retry-After")), true
	}
	return 0, false
}
