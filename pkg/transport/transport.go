package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/tablerohq/tablero/pkg/csrf"
	"github.com/tablerohq/tablero/pkg/httputil"
	"github.com/tablerohq/tablero/pkg/observability"
	"github.com/tablerohq/tablero/pkg/session"
)

const (
	// CSRFHeader carries the anti-forgery token on every request.
	CSRFHeader = "x-csrf-token"
	// SkipRefreshHeader opts a request out of the recovery phase.
	SkipRefreshHeader = "x-skip-refresh"
)

// defaultSkipPaths are endpoints whose 401s must never trigger recovery:
// a failed login is not an expired session, and refresh-of-refresh loops
// must be impossible.
var defaultSkipPaths = []string{"/login", "/logout", "/refresh-token"}

type ctxKey int

const retriedKey ctxKey = 0

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey, true)
}

func alreadyRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey).(bool)
	return v
}

// Refresher performs the credential refresh on behalf of the transport.
// Implemented by the lifecycle controller in pkg/client.
type Refresher interface {
	// RefreshCredentials exchanges the session for new tokens and stores
	// them. csrfToken is the freshly rotated anti-forgery token.
	RefreshCredentials(ctx context.Context, csrfToken string) error
	// ResyncSession re-fetches identity, roles, permissions, and menus
	// after a successful refresh.
	ResyncSession(ctx context.Context) error
	// HandleSessionExpired clears all local session state without user
	// notification. Called when the refresh itself fails.
	HandleSessionExpired(ctx context.Context)
}

// AuthTransport is the credential-attaching, one-shot-recovering
// RoundTripper wrapped around every backend client.
type AuthTransport struct {
	base      http.RoundTripper
	store     *session.Store
	csrf      *csrf.Synchronizer
	refresher Refresher
	log       *logrus.Logger
	metrics   *observability.Metrics
	skipPaths []string

	coalesce bool
	group    singleflight.Group
}

// Option configures an AuthTransport.
type Option func(*AuthTransport)

// WithBase sets the underlying RoundTripper (default http.DefaultTransport).
func WithBase(rt http.RoundTripper) Option {
	return func(t *AuthTransport) { t.base = rt }
}

// WithLogger sets the transport's logger.
func WithLogger(log *logrus.Logger) Option {
	return func(t *AuthTransport) { t.log = log }
}

// WithMetrics attaches SDK metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *AuthTransport) { t.metrics = m }
}

// WithCoalescing collapses concurrent 401-triggered refreshes into one
// in-flight call shared by all waiters. Off by default.
func WithCoalescing(enabled bool) Option {
	return func(t *AuthTransport) { t.coalesce = enabled }
}

// WithSkipPaths replaces the default never-recover path fragments.
func WithSkipPaths(paths []string) Option {
	return func(t *AuthTransport) { t.skipPaths = paths }
}

// New creates an AuthTransport reading credentials from store and
// recovering through refresher.
func New(store *session.Store, sync *csrf.Synchronizer, refresher Refresher, opts ...Option) *AuthTransport {
	t := &AuthTransport{
		base:      http.DefaultTransport,
		store:     store,
		csrf:      sync,
		refresher: refresher,
		log:       logrus.New(),
		skipPaths: defaultSkipPaths,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	t.attach(out)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if reason, skip := t.skipReason(req); skip {
		if t.metrics != nil {
			t.metrics.RecoverySkippedTotal.WithLabelValues(reason).Inc()
		}
		t.log.WithField("reason", reason).Debug("propagating 401 without recovery")
		return resp, nil
	}

	t.log.WithField("path", req.URL.Path).Warn("401 received, attempting credential refresh")
	httputil.DrainAndClose(resp.Body)

	if err := t.refresh(req.Context()); err != nil {
		t.refresher.HandleSessionExpired(req.Context())
		return nil, fmt.Errorf("session refresh failed: %w", err)
	}

	return t.replay(req)
}

// attach adds the bearer and anti-forgery headers from the store. Headers
// the caller set explicitly win.
func (t *AuthTransport) attach(req *http.Request) {
	if req.Header.Get("Authorization") == "" {
		if token := t.store.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if req.Header.Get(CSRFHeader) == "" {
		if token := t.store.CSRFToken(); token != "" {
			req.Header.Set(CSRFHeader, token)
		}
	}
}

func (t *AuthTransport) skipReason(req *http.Request) (string, bool) {
	if alreadyRetried(req.Context()) {
		return "already_retried", true
	}
	if req.Header.Get(SkipRefreshHeader) == "true" {
		return "skip_header", true
	}
	for _, fragment := range t.skipPaths {
		if strings.Contains(req.URL.Path, fragment) {
			return "auth_endpoint", true
		}
	}
	if req.Body != nil && req.GetBody == nil {
		// Cannot rebuild the body for a replay.
		return "unreplayable_body", true
	}
	return "", false
}

func (t *AuthTransport) refresh(ctx context.Context) error {
	if !t.coalesce {
		return t.doRefresh(ctx)
	}
	_, err, _ := t.group.Do("refresh", func() (interface{}, error) {
		return nil, t.doRefresh(ctx)
	})
	return err
}

func (t *AuthTransport) doRefresh(ctx context.Context) error {
	token, err := t.csrf.Wait(ctx)
	if err != nil {
		// Proceed with whatever token we already hold; the refresh
		// endpoint is the authority on whether it is still acceptable.
		t.log.WithError(err).Warn("anti-forgery rotation wait failed, using current token")
		token = t.store.CSRFToken()
	}

	if err := t.refresher.RefreshCredentials(ctx, token); err != nil {
		t.observeRefresh("error")
		return err
	}
	if err := t.refresher.ResyncSession(ctx); err != nil {
		t.observeRefresh("error")
		return err
	}
	t.observeRefresh("ok")
	return nil
}

func (t *AuthTransport) observeRefresh(result string) {
	if t.metrics != nil {
		t.metrics.RefreshTotal.WithLabelValues("interceptor", result).Inc()
	}
}

// replay re-sends the original request exactly once, with the stale
// credential headers stripped so the new tokens are attached.
func (t *AuthTransport) replay(req *http.Request) (*http.Response, error) {
	retry := req.Clone(markRetried(req.Context()))
	retry.Header.Del("Authorization")
	retry.Header.Del(CSRFHeader)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rebuild request body for replay: %w", err)
		}
		retry.Body = body
	}

	if t.metrics != nil {
		t.metrics.RequestReplaysTotal.Inc()
	}
	t.log.WithField("path", req.URL.Path).Info("replaying request with refreshed credentials")
	return t.RoundTrip(retry)
}
