// Package collyfetcher implements the authenticated JSON fetcher using gocolly.
package collyfetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ErrTooManyRedirects is returned by the redirect handler once a request
// follows more than Config.MaxRedirects redirects.
var ErrTooManyRedirects = errors.New("stopped after too many redirects")

// Outcome labels a single Fetch call.
type Outcome string

// Fetch outcomes.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeRedirect Outcome = "redirect"
	OutcomeStatus   Outcome = "status"
	OutcomeDecode   Outcome = "decode"
	OutcomeTooLarge Outcome = "too_large"
	OutcomeFatal    Outcome = "fatal"
)

const defaultTimeout = 30 * time.Second

// Observer receives one outcome per Fetch call.
type Observer interface {
	ObserveFetch(outcome string, duration time.Duration)
}

// Config controls collector behavior.
type Config struct {
	AuthToken    string
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	// MaxBodyBytes caps response bodies; 0 reads bodies of any size.
	MaxBodyBytes int
}

// Response is the raw result of a GET.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher issues authenticated GET requests through a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
	observer      Observer
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. logger and observer may be nil.
func New(cfg Config, logger *zap.Logger, observer Observer) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// colly truncates at 10 MiB unless told otherwise.
	c.MaxBodySize = max(cfg.MaxBodyBytes, 0)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	f := &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
		observer:      observer,
	}
	c.SetRedirectHandler(f.checkRedirect)
	return f
}

// Fetch GETs rawURL and returns its JSON body.
//
// A nil body with a nil error means "no data": the request timed out, hit the
// redirect limit, answered with a non-2xx status, was cut off at
// Config.MaxBodyBytes or returned something that is not JSON. Callers skip the item instead of retrying. Every other failure
// is returned and should end the run.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			f.observe(OutcomeFatal, start)
			return nil, err
		case isTimeout(err):
			f.logger.Warn("Timeout. Skipping.", zap.String("url", rawURL), zap.Error(err))
			f.observe(OutcomeTimeout, start)
			return nil, nil
		case errors.Is(err, ErrTooManyRedirects):
			f.logger.Warn("Bad URL: too many redirects", zap.String("url", rawURL), zap.Error(err))
			f.observe(OutcomeRedirect, start)
			return nil, nil
		default:
			f.observe(OutcomeFatal, start)
			return nil, err
		}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		f.logger.Warn("Unexpected status",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(resp.Body)),
		)
		f.observe(OutcomeStatus, start)
		return nil, nil
	}
	if !json.Valid(resp.Body) {
		if f.cfg.MaxBodyBytes > 0 && len(resp.Body) >= f.cfg.MaxBodyBytes {
			f.logger.Warn("Response exceeds body limit",
				zap.String("url", rawURL),
				zap.Int("limit", f.cfg.MaxBodyBytes),
			)
			f.observe(OutcomeTooLarge, start)
			return nil, nil
		}
		f.logger.Warn("Response is not JSON", zap.String("url", rawURL), zap.Int("bytes", len(resp.Body)))
		f.observe(OutcomeDecode, start)
		return nil, nil
	}
	f.observe(OutcomeOK, start)
	return json.RawMessage(resp.Body), nil
}

// Get executes a single authenticated GET and returns the response whatever
// its status code.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return Response{}, err
	}
	f.logger.Debug("Fetched",
		zap.String("url", rawURL),
		zap.Int("status", result.StatusCode),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// Status GETs rawURL and reports only the status code.
func (f *Fetcher) Status(ctx context.Context, rawURL string) (int, error) {
	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	if r.Headers == nil {
		return
	}
	r.Headers.Set("Accept", "application/json")
	if f.cfg.AuthToken != "" {
		r.Headers.Set("Authorization", "Bearer "+f.cfg.AuthToken)
	}
}

func (f *Fetcher) checkRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) > f.cfg.MaxRedirects {
		return ErrTooManyRedirects
	}
	return nil
}

func (f *Fetcher) observe(outcome Outcome, start time.Time) {
	if f.observer == nil {
		return
	}
	f.observer.ObserveFetch(string(outcome), time.Since(start))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
