package menu

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tablerohq/tablero/pkg/api"
	"github.com/tablerohq/tablero/pkg/session"
)

// StorageKey is the storage key for the persisted menu state, separate
// from the session projection.
const StorageKey = "menu-state"

// Store holds the menu tree and a loaded flag. Loaded distinguishes "no
// menus for this user" from "menus not fetched yet".
type Store struct {
	mu     sync.RWMutex
	menus  []api.MenuNode
	loaded bool

	storage session.Storage
	log     *logrus.Logger
}

// NewStore creates an empty menu store backed by storage.
func NewStore(storage session.Storage, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{storage: storage, log: log}
}

type persistedState struct {
	Menus  []api.MenuNode `json:"menus"`
	Loaded bool           `json:"menuLoaded"`
}

// SetMenus replaces the tree, marks it loaded, and persists both.
func (s *Store) SetMenus(ctx context.Context, menus []api.MenuNode) {
	s.mu.Lock()
	s.menus = append([]api.MenuNode(nil), menus...)
	s.loaded = true
	s.mu.Unlock()
	s.persist(ctx)
}

// Clear drops the tree and the loaded flag and removes the persisted copy.
// Safe to call repeatedly.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	wasEmpty := len(s.menus) == 0 && !s.loaded
	s.menus = nil
	s.loaded = false
	s.mu.Unlock()

	if wasEmpty {
		return
	}
	if err := s.storage.Delete(ctx, StorageKey); err != nil {
		s.log.WithError(err).Error("failed to delete persisted menus")
	}
}

// Load restores the persisted tree at startup. A missing entry is fine.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.storage.Load(ctx, StorageKey)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.WithError(err).Warn("discarding corrupt persisted menus")
		return nil
	}
	s.mu.Lock()
	s.menus = state.Menus
	s.loaded = state.Loaded
	s.mu.Unlock()
	return nil
}

// Menus returns a copy of the tree.
func (s *Store) Menus() []api.MenuNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.MenuNode(nil), s.menus...)
}

// Loaded reports whether a fetch has populated the store.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Flattened returns the deduplicated flat view of the tree.
func (s *Store) Flattened() []api.MenuNode {
	s.mu.RLock()
	tree := append([]api.MenuNode(nil), s.menus...)
	s.mu.RUnlock()
	return Flatten(tree, s.log)
}

func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	state := persistedState{Menus: s.menus, Loaded: s.loaded}
	s.mu.RUnlock()

	data, err := json.Marshal(state)
	if err != nil {
		s.log.WithError(err).Error("failed to encode menu state")
		return
	}
	if err := s.storage.Save(ctx, StorageKey, data); err != nil {
		s.log.WithError(err).Error("failed to persist menus")
	}
}
