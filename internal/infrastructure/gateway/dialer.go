package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/salesync/internal/domain/replication"
)

// Defaults applied when the dialer is created without options
const (
	DefaultTimeout       = 10 * time.Second
	DefaultRatePerSecond = 20
	DefaultBurst         = 5
)

// Dialer builds Clients for the persisted sync configuration. Every
// client it returns shares one rate limiter.
type Dialer struct {
	http     *http.Client
	limiter  *rate.Limiter
	observer Observer
	logger   *zap.Logger
}

var _ replication.Dialer = (*Dialer)(nil)

// DialerOption configures a Dialer
type DialerOption func(*Dialer)

// WithTimeout bounds every remote call
func WithTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) {
		if d > 0 {
			dl.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client; used by tests and for custom transports
func WithHTTPClient(c *http.Client) DialerOption {
	return func(dl *Dialer) {
		if c != nil {
			dl.http = c
		}
	}
}

// WithRateLimit limits the outbound call rate
func WithRateLimit(perSecond float64, burst int) DialerOption {
	return func(dl *Dialer) {
		if perSecond > 0 && burst > 0 {
			dl.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithObserver reports call latencies
func WithObserver(o Observer) DialerOption {
	return func(dl *Dialer) {
		if o != nil {
			dl.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) DialerOption {
	return func(dl *Dialer) {
		if l != nil {
			dl.logger = l
		}
	}
}

// NewDialer creates a Dialer
func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{
		http:     &http.Client{Timeout: DefaultTimeout},
		limiter:  rate.NewLimiter(DefaultRatePerSecond, DefaultBurst),
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "gateway"))
	return d
}

// Dial returns a client for cfg. No network traffic happens until the
// first call.
func (d *Dialer) Dial(_ context.Context, cfg replication.SyncConfig) (replication.Gateway, error) {
	if !cfg.IsComplete() {
		return nil, replication.ErrConfigIncomplete
	}
	endpoint, err := endpointFor(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint: endpoint,
		database: cfg.Database,
		userID:   cfg.UserID,
		password: cfg.Password,
		http:     d.http,
		limiter:  d.limiter,
		observer: d.observer,
		logger:   d.logger.With(zap.String("database", cfg.Database)),
	}, nil
}

func endpointFor(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", unreachable("invalid server url %q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", unreachable("invalid server url %q", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/jsonrpc"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
