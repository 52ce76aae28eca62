package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tablerohq/tablero/pkg/config"
	"github.com/tablerohq/tablero/pkg/csrf"
	"github.com/tablerohq/tablero/pkg/httputil"
	"github.com/tablerohq/tablero/pkg/menu"
	"github.com/tablerohq/tablero/pkg/observability"
	"github.com/tablerohq/tablero/pkg/session"
	"github.com/tablerohq/tablero/pkg/transport"
)

// Client coordinates the session lifecycle against the auth, user, and
// menu services.
type Client struct {
	cfg     *config.Config
	log     *logrus.Logger
	metrics *observability.Metrics

	http    *http.Client
	authURL *url.URL
	userURL *url.URL
	menuURL *url.URL

	sessions *session.Store
	menus    *menu.Store
	csrf     *csrf.Synchronizer
	deviceID string

	onSessionExpired func()

	renewMu   sync.Mutex
	renewCron *cron.Cron
}

// Option configures a Client.
type Option func(*options)

type options struct {
	storage          session.Storage
	log              *logrus.Logger
	metrics          *observability.Metrics
	deviceID         string
	onSessionExpired func()
}

// WithStorage overrides the persistence backend (default: FileStorage in
// the configured state directory).
func WithStorage(s session.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithLogger overrides the logger built from the config's log level.
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics attaches SDK metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDeviceID fixes the device identifier instead of loading or creating
// one in the state directory.
func WithDeviceID(id string) Option {
	return func(o *options) { o.deviceID = id }
}

// WithSessionExpiredHandler registers a callback invoked after a silent
// logout caused by an unrecoverable refresh failure, so the embedding
// application can route the user to its sign-in surface. The SDK itself
// never navigates.
func WithSessionExpiredHandler(fn func()) Option {
	return func(o *options) { o.onSessionExpired = fn }
}

// New builds a Client from cfg. No network traffic happens here; call
// Restore or Login to establish a session.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.log
	if log == nil {
		log = observability.NewLogger(cfg.LogLevel, nil)
	}

	authURL, err := url.Parse(cfg.AuthServiceURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth service URL: %w", err)
	}
	userURL, err := url.Parse(cfg.UserServiceURL)
	if err != nil {
		return nil, fmt.Errorf("parse user service URL: %w", err)
	}
	menuURL, err := url.Parse(cfg.MenuServiceURL)
	if err != nil {
		return nil, fmt.Errorf("parse menu service URL: %w", err)
	}

	storage := o.storage
	if storage == nil {
		fs, err := session.NewFileStorage(cfg.StateDir, log)
		if err != nil {
			return nil, err
		}
		storage = fs
	}

	deviceID := o.deviceID
	if deviceID == "" {
		deviceID, err = loadOrCreateDeviceID(cfg.StateDir)
		if err != nil {
			return nil, err
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		metrics: o.metrics,
		authURL: authURL,
		userURL: userURL,
		menuURL: menuURL,
		sessions: session.NewStore(storage,
			session.WithLogger(log),
			session.WithMetrics(o.metrics),
			session.WithPersistAccessToken(cfg.PersistAccessToken),
		),
		menus:            menu.NewStore(storage, log),
		deviceID:         deviceID,
		onSessionExpired: o.onSessionExpired,
	}

	source := &csrf.JarSource{Jar: jar, Origin: authURL, CookieName: cfg.CSRFCookieName}
	c.csrf = csrf.NewSynchronizer(source, c.sessions, log, o.metrics)
	c.csrf.Timeout = cfg.CSRFWaitTimeout
	c.csrf.PollInterval = cfg.CSRFPollInterval

	authTransport := transport.New(c.sessions, c.csrf, c,
		transport.WithLogger(log),
		transport.WithMetrics(o.metrics),
		transport.WithCoalescing(cfg.CoalesceRefresh),
	)
	c.http = &http.Client{
		Jar:       jar,
		Transport: authTransport,
		Timeout:   cfg.RequestTimeout,
	}

	// The renewal loop must die the moment authentication goes false, no
	// matter which path cleared it.
	c.sessions.Subscribe(func(rec session.Record) {
		if !rec.IsAuthenticated {
			c.stopRenewal()
		}
	})

	return c, nil
}

// Session exposes the credential store for read access and subscriptions.
func (c *Client) Session() *session.Store { return c.sessions }

// Menus exposes the menu store.
func (c *Client) Menus() *menu.Store { return c.menus }

// DeviceID returns the per-device identifier sent with login requests.
func (c *Client) DeviceID() string { return c.deviceID }

// Restore loads persisted state and, when it claims an authenticated
// session, verifies it against the backend. A stale "authenticated" flag
// without a valid backing session is cleared by the FetchSession self-heal
// path. Also starts watching file-backed storage for changes made by other
// processes.
func (c *Client) Restore(ctx context.Context) error {
	if err := c.sessions.Load(ctx); err != nil {
		return fmt.Errorf("load persisted session: %w", err)
	}
	if err := c.menus.Load(ctx); err != nil {
		return fmt.Errorf("load persisted menus: %w", err)
	}
	if _, ok := c.sessions.Storage().(session.Watcher); ok {
		if err := c.sessions.WatchStorage(ctx); err != nil {
			c.log.WithError(err).Warn("session storage watch unavailable")
		}
	}

	if !c.sessions.IsAuthenticated() {
		return nil
	}
	if err := c.FetchSession(ctx); err != nil {
		c.log.WithError(err).Info("persisted session no longer valid")
		return nil
	}
	c.startRenewal()
	return nil
}

// CanAccess reports whether the current session may visit path: the menu
// entry must exist and its required permission, if any, must be held.
func (c *Client) CanAccess(path string) bool {
	node := menu.FindByPath(c.menus.Menus(), path)
	if node == nil {
		return false
	}
	if node.Permission == nil || *node.Permission == "" {
		return true
	}
	return c.sessions.HasPermission(*node.Permission)
}

// doJSON issues a request with an optional JSON body and decodes the
// response into dest. Extra headers win over transport-attached ones.
func (c *Client) doJSON(ctx context.Context, method string, u *url.URL, body interface{}, headers map[string]string, dest interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return httputil.DecodeJSON(resp, dest)
}
