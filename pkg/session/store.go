package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tablerohq/tablero/pkg/api"
	"github.com/tablerohq/tablero/pkg/observability"
)

// Record is the session state at one point in time. IsAuthenticated is true
// iff User is present. AccessToken and CSRFToken may be empty even while
// authenticated; consumers must treat absence as "not yet known", not as
// "signed out".
type Record struct {
	IsAuthenticated bool
	AccessToken     string
	CSRFToken       string
	User            *api.User
	Roles           []string
	Permissions     []string
	Menus           []api.MenuNode
}

// Store is the credential store. All reads and mutations go through its
// methods; the record itself never escapes by reference.
type Store struct {
	mu      sync.RWMutex
	rec     Record
	lastRaw []byte

	storage       Storage
	persistAccess bool
	log           *logrus.Logger
	metrics       *observability.Metrics

	subMu sync.RWMutex
	subs  []func(Record)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store's logger.
func WithLogger(log *logrus.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithMetrics attaches SDK metrics.
func WithMetrics(m *observability.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithPersistAccessToken includes the bearer token in the durable
// projection. Leave off unless the deployment has reviewed the risk of a
// bearer credential in long-lived storage.
func WithPersistAccessToken(persist bool) StoreOption {
	return func(s *Store) { s.persistAccess = persist }
}

// NewStore creates an empty store backed by storage.
func NewStore(storage Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage: storage,
		log:     logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Storage returns the backing storage, shared with the menu store.
func (s *Store) Storage() Storage { return s.storage }

// Subscribe registers fn to run after every effective mutation with a
// snapshot of the new state. Callbacks run outside the store's lock.
func (s *Store) Subscribe(fn func(Record)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

// SetAccessToken stores a new access token. Empty or identical values are
// no-ops: no persistence write, no notification.
func (s *Store) SetAccessToken(ctx context.Context, token string) {
	s.mu.Lock()
	if token == "" || token == s.rec.AccessToken {
		s.mu.Unlock()
		return
	}
	s.rec.AccessToken = token
	s.finishMutation(ctx)
}

// SetCSRFToken stores a new anti-forgery token with the same idempotence
// guard as SetAccessToken.
func (s *Store) SetCSRFToken(ctx context.Context, token string) {
	s.mu.Lock()
	if token == "" || token == s.rec.CSRFToken {
		s.mu.Unlock()
		return
	}
	s.rec.CSRFToken = token
	s.finishMutation(ctx)
}

// SetUser stores the authenticated user and flips IsAuthenticated. Roles
// and permissions are set separately so partial updates stay possible.
func (s *Store) SetUser(ctx context.Context, user api.User) {
	s.mu.Lock()
	u := user
	s.rec.User = &u
	s.rec.IsAuthenticated = true
	s.finishMutation(ctx)
}

// SetRoles replaces the role set.
func (s *Store) SetRoles(ctx context.Context, roles []string) {
	s.mu.Lock()
	s.rec.Roles = append([]string(nil), roles...)
	s.finishMutation(ctx)
}

// SetPermissions replaces the permission set.
func (s *Store) SetPermissions(ctx context.Context, permissions []string) {
	s.mu.Lock()
	s.rec.Permissions = append([]string(nil), permissions...)
	s.finishMutation(ctx)
}

// SetMenus replaces the menu tree, preserving insertion order. Menus are
// not part of the durable projection, so no storage write happens here.
func (s *Store) SetMenus(ctx context.Context, menus []api.MenuNode) {
	s.mu.Lock()
	s.rec.Menus = append([]api.MenuNode(nil), menus...)
	rec := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(rec)
}

// Clear resets every field in one atomic update and removes the persisted
// projection. Calling it on an already-empty store is a no-op.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	if s.emptyLocked() {
		s.mu.Unlock()
		return
	}
	s.rec = Record{}
	s.lastRaw = nil
	rec := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, SessionKey); err != nil {
		s.log.WithError(err).Error("failed to delete persisted session")
	}
	if s.metrics != nil {
		s.metrics.StoreClearsTotal.Inc()
	}
	s.notify(rec)
}

// Load reads the persisted projection into the store. Called once at
// startup, before any network traffic. A missing projection is not an
// error.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.storage.Load(ctx, SessionKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var p projection
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.WithError(err).Warn("discarding corrupt persisted session")
		return nil
	}
	s.mu.Lock()
	s.applyProjectionLocked(p)
	s.lastRaw = data
	s.mu.Unlock()
	return nil
}

// WatchStorage reloads the store whenever the persisted projection changes
// underneath it (another process logging in, rotating tokens, or signing
// out). Requires a Watcher-capable storage.
func (s *Store) WatchStorage(ctx context.Context) error {
	w, ok := s.storage.(Watcher)
	if !ok {
		return errors.New("storage backend does not support watching")
	}
	return w.Watch(ctx, SessionKey, func() {
		data, err := s.storage.Load(ctx, SessionKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.log.WithError(err).Warn("failed to reload session after external change")
			return
		}

		s.mu.Lock()
		if bytes.Equal(data, s.lastRaw) {
			s.mu.Unlock()
			return
		}
		if data == nil {
			s.rec = Record{}
			s.lastRaw = nil
		} else {
			var p projection
			if err := json.Unmarshal(data, &p); err != nil {
				s.mu.Unlock()
				s.log.WithError(err).Warn("ignoring corrupt external session change")
				return
			}
			s.applyProjectionLocked(p)
			s.lastRaw = data
		}
		rec := s.snapshotLocked()
		s.mu.Unlock()

		s.log.Debug("session reloaded after external change")
		s.notify(rec)
	})
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// IsAuthenticated reports whether a user is present.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.IsAuthenticated
}

// AccessToken returns the current access token, possibly empty.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.AccessToken
}

// CSRFToken returns the current anti-forgery token, possibly empty.
func (s *Store) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.CSRFToken
}

// User returns a copy of the authenticated user, or nil.
func (s *Store) User() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec.User == nil {
		return nil
	}
	u := *s.rec.User
	return &u
}

// HasRole reports whether the session carries the role, compared
// case-insensitively.
func (s *Store) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rec.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the session carries the permission,
// compared case-insensitively.
func (s *Store) HasPermission(permission string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.rec.Permissions {
		if strings.EqualFold(p, permission) {
			return true
		}
	}
	return false
}

// finishMutation persists and notifies after a mutation. Must be called
// with the write lock held; it releases the lock.
func (s *Store) finishMutation(ctx context.Context) {
	rec := s.snapshotLocked()
	data, err := json.Marshal(s.projectionLocked())
	changed := err == nil && !bytes.Equal(data, s.lastRaw)
	if changed {
		s.lastRaw = data
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Error("failed to encode session projection")
	} else if changed {
		if saveErr := s.storage.Save(ctx, SessionKey, data); saveErr != nil {
			s.log.WithError(saveErr).Error("failed to persist session")
		} else if s.metrics != nil {
			s.metrics.PersistWritesTotal.Inc()
		}
	}
	s.notify(rec)
}

func (s *Store) notify(rec Record) {
	s.subMu.RLock()
	subs := make([]func(Record), len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(rec)
	}
}

func (s *Store) snapshotLocked() Record {
	rec := Record{
		IsAuthenticated: s.rec.IsAuthenticated,
		AccessToken:     s.rec.AccessToken,
		CSRFToken:       s.rec.CSRFToken,
		Roles:           append([]string(nil), s.rec.Roles...),
		Permissions:     append([]string(nil), s.rec.Permissions...),
		Menus:           append([]api.MenuNode(nil), s.rec.Menus...),
	}
	if s.rec.User != nil {
		u := *s.rec.User
		rec.User = &u
	}
	return rec
}

func (s *Store) emptyLocked() bool {
	return !s.rec.IsAuthenticated &&
		s.rec.AccessToken == "" &&
		s.rec.CSRFToken == "" &&
		s.rec.User == nil &&
		len(s.rec.Roles) == 0 &&
		len(s.rec.Permissions) == 0 &&
		len(s.rec.Menus) == 0
}

// persistedUser is the minimal user projection written to storage.
type persistedUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// projection is the durable subset of the record. Menus are deliberately
// excluded; the access token is included only when opted in.
type projection struct {
	IsAuthenticated bool           `json:"isAuthenticated"`
	User            *persistedUser `json:"user,omitempty"`
	CSRFToken       string         `json:"csrfToken,omitempty"`
	AccessToken     string         `json:"accessToken,omitempty"`
	Roles           []string       `json:"roles,omitempty"`
	Permissions     []string       `json:"permissions,omitempty"`
}

func (s *Store) projectionLocked() projection {
	p := projection{
		IsAuthenticated: s.rec.IsAuthenticated,
		CSRFToken:       s.rec.CSRFToken,
		Roles:           s.rec.Roles,
		Permissions:     s.rec.Permissions,
	}
	if s.persistAccess {
		p.AccessToken = s.rec.AccessToken
	}
	if s.rec.User != nil {
		p.User = &persistedUser{
			ID:           s.rec.User.ID,
			Username:     s.rec.User.Username,
			Email:        s.rec.User.Email,
			ProfileImage: s.rec.User.ProfileImage,
		}
	}
	return p
}

func (s *Store) applyProjectionLocked(p projection) {
	s.rec = Record{
		IsAuthenticated: p.IsAuthenticated,
		AccessToken:     p.AccessToken,
		CSRFToken:       p.CSRFToken,
		Roles:           p.Roles,
		Permissions:     p.Permissions,
	}
	if p.User != nil {
		s.rec.User = &api.User{
			ID:           p.User.ID,
			Username:     p.User.Username,
			Email:        p.User.Email,
			ProfileImage: p.User.ProfileImage,
		}
	}
}
