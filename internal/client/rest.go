package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/menusync/internal/config"
	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/session"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

type RESTClient struct {
	rl             ratelimit.Limiter
	streamURL      string
	httpClient     *resty.Client
	dialer         *websocket.Dialer
	sessionOptions []session.Option
	breaker        *breaker
}

func NewRESTClient(cfg config.MenuConfig, sessionCfg config.SessionConfig) *RESTClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	streamURL := cfg.StreamURL
	if streamURL == "" {
		streamURL = websocketURL(cfg.BaseURL)
	}

	opts := []session.Option{
		session.WithMaxLifetime(sessionCfg.MaxLifetime),
		session.WithCheckInterval(sessionCfg.CheckInterval),
	}
	if sessionCfg.OneShot {
		opts = append(opts, session.WithOneShot())
	}

	return &RESTClient{
		rl:             rl,
		streamURL:      strings.TrimRight(streamURL, "/"),
		httpClient:     client,
		dialer:         &websocket.Dialer{HandshakeTimeout: time.Duration(cfg.Timeout) * time.Second},
		sessionOptions: opts,
		breaker:        newBreaker(clock.New(), time.Duration(cfg.CircuitBreakerSeconds)*time.Second),
	}
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func scopePath(scope domain.Scope) string {
	return fmt.Sprintf("/v1/partners/%s/locations/%s",
		url.PathEscape(scope.Partner), url.PathEscape(scope.Location))
}

func (c *RESTClient) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrieveResponse, error) {
	query := url.Values{}
	if req.Fingerprint != "" {
		query.Set("fingerprint", req.Fingerprint)
	}
	if req.KeysOnly {
		query.Set("keys_only", "true")
	}

	var result domain.RetrieveResponse
	resp, err := c.get(ctx, scopePath(req.Scope)+"/menu", query, &result)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusNotModified {
		log.Debugf("Menu for %s not modified since %s", req.Scope, req.Fingerprint)
		return &domain.RetrieveResponse{Fingerprint: req.Fingerprint, NotModified: true}, nil
	}

	log.Debugf("Fetched menu %s for %s with %d products", result.Fingerprint, req.Scope, result.Catalog.ProductCount())
	return &result, nil
}

func (c *RESTClient) Product(ctx context.Context, req domain.ProductRequest) (*domain.ProductResponse, error) {
	path := fmt.Sprintf("%s/products/%s/%s", scopePath(req.Scope),
		url.PathEscape(req.Key.Kind.String()), url.PathEscape(req.Key.ID))

	var result domain.ProductResponse
	resp, err := c.get(ctx, path, nil, &result)
	if err != nil {
		return nil, err
	}
	if modified, err := http.ParseTime(resp.Header().Get("Last-Modified")); err == nil {
		result.Modified = modified
	}

	return &result, nil
}

func (c *RESTClient) Featured(ctx context.Context, req domain.FeaturedRequest) (*domain.FeaturedResponse, error) {
	query := url.Values{}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}

	var result domain.FeaturedResponse
	if _, err := c.get(ctx, scopePath(req.Scope)+"/featured", query, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Stream opens the menu stream and hands it to a new session. The caller
// still has to Subscribe.
func (c *RESTClient) Stream(ctx context.Context, req domain.StreamRequest, opts ...session.Option) (*session.Session, error) {
	query := url.Values{}
	if req.Fingerprint != "" && req.BaseMenu != nil {
		query.Set("fingerprint", req.Fingerprint)
	}
	if req.KeysOnly {
		query.Set("keys_only", "true")
	}

	target := c.streamURL + scopePath(req.Scope) + "/menu/stream"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if err := c.admit(); err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Code: resp.StatusCode, Message: resp.Status}
		}
		return nil, fmt.Errorf("failed to open menu stream for %s: %w", req.Scope, err)
	}

	logger := log.WithField("scope", req.Scope.String())
	all := make([]session.Option, 0, len(c.sessionOptions)+len(opts)+3)
	all = append(all, c.sessionOptions...)
	all = append(all,
		session.WithBaseMenu(req.BaseMenu, req.Fingerprint),
		session.WithLogger(logger),
		session.WithContext(ctx),
	)
	all = append(all, opts...)

	logger.Infof("🔗 Menu stream opened for %s", req.Scope)
	return session.New(NewWSStream(conn, logger), all...), nil
}

// errorBody is the JSON error document the menu service answers with.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// get fetches path and decodes a successful JSON body into result.
func (c *RESTClient) get(ctx context.Context, path string, query url.Values, result any) (*resty.Response, error) {
	if err := c.admit(); err != nil {
		return nil, err
	}

	r := c.httpClient.R().
		SetContext(ctx).
		SetExpectResponseContentType("application/json").
		SetResult(result).
		SetError(&errorBody{})
	if len(query) > 0 {
		r.SetQueryParamsFromValues(query)
	}

	resp, err := r.Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		c.breaker.trip()
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Message: errorMessage(resp)}
	}

	return resp, nil
}

func errorMessage(resp *resty.Response) string {
	if body, ok := resp.Error().(*errorBody); ok {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		}
	}
	return resp.String()
}

// admit applies the rate limit, failing fast while the breaker is open.
func (c *RESTClient) admit() error {
	if remaining := c.breaker.remaining(); remaining > 0 {
		log.Debugf("🚫 Request blocked by circuit breaker. Remaining time: %v", remaining.Round(time.Second))
		return &StatusError{
			Code:    http.StatusTooManyRequests,
			Message: fmt.Sprintf("circuit breaker is open - requests disabled for %v more", remaining.Round(time.Second)),
		}
	}

	c.rl.Take()
	return nil
}

func (c *RESTClient) Close() error {
	return c.httpClient.Close()
}
