package csrf

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tablerohq/tablero/pkg/observability"
	"github.com/tablerohq/tablero/pkg/session"
)

// ErrRotationTimeout is returned by Wait when no anti-forgery cookie
// appears within the configured timeout.
var ErrRotationTimeout = errors.New("timed out waiting for rotated anti-forgery token")

// DefaultCookieName is the cookie carrying the rotated token.
const DefaultCookieName = "csrfToken"

const (
	// DefaultWaitTimeout bounds Wait.
	DefaultWaitTimeout = 5 * time.Second
	// DefaultPollInterval is the cookie re-check cadence inside Wait.
	DefaultPollInterval = 100 * time.Millisecond
)

// Source yields the current anti-forgery cookie value, if any.
type Source interface {
	CSRFCookie() (string, bool)
}

// JarSource reads the cookie from an http.CookieJar for a given service
// origin, which is where the http.Client deposits Set-Cookie responses.
type JarSource struct {
	Jar        http.CookieJar
	Origin     *url.URL
	CookieName string
}

// CSRFCookie implements Source.
func (s *JarSource) CSRFCookie() (string, bool) {
	name := s.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	for _, c := range s.Jar.Cookies(s.Origin) {
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// Synchronizer bridges the cookie value and the credential store's copy.
type Synchronizer struct {
	source  Source
	store   *session.Store
	log     *logrus.Logger
	metrics *observability.Metrics

	// Timeout and PollInterval govern Wait. They are explicit
	// configuration, not hidden constants.
	Timeout      time.Duration
	PollInterval time.Duration
}

// NewSynchronizer wires a cookie source to the credential store.
func NewSynchronizer(source Source, store *session.Store, log *logrus.Logger, metrics *observability.Metrics) *Synchronizer {
	if log == nil {
		log = logrus.New()
	}
	return &Synchronizer{
		source:       source,
		store:        store,
		log:          log,
		metrics:      metrics,
		Timeout:      DefaultWaitTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// Reconcile reads the cookie once. A present value that differs from the
// store's copy is pushed into the store. Returns the cookie value and
// whether one existed.
func (s *Synchronizer) Reconcile(ctx context.Context) (string, bool) {
	token, ok := s.source.CSRFCookie()
	if !ok {
		return "", false
	}
	if token != s.store.CSRFToken() {
		s.log.Debug("anti-forgery token rotated, updating store")
		s.store.SetCSRFToken(ctx, token)
	}
	return token, true
}

// Wait polls the cookie until a value appears or the timeout elapses. On
// success the value is reconciled into the store and returned; on timeout
// ErrRotationTimeout is returned. Wait always settles; it never blocks the
// caller beyond the timeout.
func (s *Synchronizer) Wait(ctx context.Context) (string, error) {
	start := time.Now()
	if token, ok := s.Reconcile(ctx); ok {
		s.observeWait(start)
		return token, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if s.metrics != nil {
					s.metrics.RotationTimeoutsTotal.Inc()
				}
				return "", ErrRotationTimeout
			}
			return "", ctx.Err()
		case <-ticker.C:
			if token, ok := s.Reconcile(ctx); ok {
				s.observeWait(start)
				return token, nil
			}
		}
	}
}

func (s *Synchronizer) observeWait(start time.Time) {
	if s.metrics != nil {
		s.metrics.RotationWaitSeconds.Observe(time.Since(start).Seconds())
	}
}
