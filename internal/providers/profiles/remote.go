// Package profiles provides a ProfileSource backed by a remote registry's
// HTTP API.
//
// Endpoints, relative to the base URL:
//
//	GET /services                 -> ["<service key>", ...]
//	GET /services/{key}/profile   -> {"service_key", "provider_key", "category_uri", "input_uris", "output_uris"}
//
// A 404 on a profile lookup is NoMatchFound. Transport failures, other
// non-2xx statuses, timeouts and an open circuit breaker are Communication
// errors. Calls are rate limited and never retried.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/logging"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/resilience"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/tracing"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// Config configures the remote client
type Config struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Token   string
}

// Remote is an HTTP profile source
type Remote struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewRemote creates a remote profile source
func NewRemote(cfg Config, logger *zap.Logger) (*Remote, error) {
	const op = "profiles.NewRemote"

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fault.New(fault.Configuration, op, "invalid profile source url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// pooled transport only; retries stay with the caller
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetTransport(retryClient.HTTPClient.Transport).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "semantic-registry/1.0").
		SetJSONUnmarshaler(sonic.Unmarshal).
		OnBeforeRequest(tracing.RestyPropagator())
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	r := &Remote{
		resty:   client,
		limiter: limiter,
		logger:  logger,
	}
	r.breaker = resilience.New("profile-source", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return r, nil
}

// ListServiceKeys returns every service key the remote registry knows
func (r *Remote) ListServiceKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := r.get(ctx, "profiles.ListServiceKeys", "/services", &keys); err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// ServiceProfile returns the semantic profile of one service
func (r *Remote) ServiceProfile(ctx context.Context, serviceKey string) (types.ServiceProfile, error) {
	const op = "profiles.ServiceProfile"
	if serviceKey == "" {
		return types.ServiceProfile{}, fault.New(fault.MalformedInput, op, "service key is required")
	}

	var profile types.ServiceProfile
	path := "/services/" + url.PathEscape(serviceKey) + "/profile"
	if err := r.get(ctx, op, path, &profile); err != nil {
		return types.ServiceProfile{}, err
	}
	if profile.ServiceKey == "" {
		profile.ServiceKey = serviceKey
	}
	return profile, nil
}

// BreakerState returns the circuit breaker state
func (r *Remote) BreakerState() resilience.State {
	return r.breaker.State()
}

func (r *Remote) get(ctx context.Context, op, path string, out interface{}) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fault.Wrap(fault.Communication, op, err, "rate limit wait")
	}

	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := r.resty.R().
			SetContext(ctx).
			SetResult(out).
			Get(path)
		if err != nil {
			return fault.Wrap(fault.Communication, op, err, "GET %s", path)
		}

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return fault.New(fault.NoMatchFound, op, "%s not found", path)
		case resp.IsError():
			return fault.New(fault.Communication, op, "GET %s: unexpected status %d", path, resp.StatusCode())
		}
		return nil
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		r.logger.Debug("Profile source call rejected", zap.String("path", path), logging.Fault(err))
		return fault.Wrap(fault.Communication, op, err, "profile source unavailable")
	case err != nil && fault.KindOf(err) == fault.Internal:
		return fault.Wrap(fault.Communication, op, err, "GET %s", path)
	}
	return err
}

// String describes the client for logs
func (r *Remote) String() string {
	return fmt.Sprintf("remote(%s)", r.resty.BaseURL)
}
