package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablerohq/tablero/pkg/api"
	"github.com/tablerohq/tablero/pkg/observability"
)

// countingStorage wraps MemoryStorage and counts writes.
type countingStorage struct {
	*MemoryStorage
	mu    sync.Mutex
	saves int
}

func newCountingStorage() *countingStorage {
	return &countingStorage{MemoryStorage: NewMemoryStorage()}
}

func (s *countingStorage) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryStorage.Save(ctx, key, data)
}

func (s *countingStorage) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestSetAccessTokenIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := newCountingStorage()
	store := NewStore(storage,
		WithLogger(observability.NopLogger()),
		WithPersistAccessToken(true),
	)

	notifications := 0
	store.Subscribe(func(Record) { notifications++ })

	store.SetAccessToken(ctx, "A1")
	store.SetAccessToken(ctx, "A1")

	assert.Equal(t, "A1", store.AccessToken())
	assert.Equal(t, 1, storage.saveCount(), "identical value must not be persisted twice")
	assert.Equal(t, 1, notifications, "identical value must not notify twice")

	// Empty is also a no-op.
	store.SetAccessToken(ctx, "")
	assert.Equal(t, "A1", store.AccessToken())
	assert.Equal(t, 1, notifications)
}

func TestSubscribeNotifiesEverySubscriberPerMutation(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), WithLogger(observability.NopLogger()))

	var first, second int
	store.Subscribe(func(Record) { first++ })
	store.Subscribe(func(Record) { second++ })

	store.SetCSRFToken(ctx, "C1")
	store.SetRoles(ctx, []string{"ADMIN"})

	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
}

func TestSetCSRFTokenIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := newCountingStorage()
	store := NewStore(storage, WithLogger(observability.NopLogger()))

	store.SetCSRFToken(ctx, "C1")
	store.SetCSRFToken(ctx, "C1")
	store.SetCSRFToken(ctx, "C2")

	assert.Equal(t, "C2", store.CSRFToken())
	assert.Equal(t, 2, storage.saveCount())
}

func TestSetUserFlipsAuthenticated(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), WithLogger(observability.NopLogger()))

	assert.False(t, store.IsAuthenticated())
	store.SetUser(ctx, api.User{ID: "u1", Username: "alice"})
	assert.True(t, store.IsAuthenticated())

	// Roles and permissions are untouched by SetUser.
	snap := store.Snapshot()
	assert.Empty(t, snap.Roles)
	assert.Empty(t, snap.Permissions)
}

func TestRoleAndPermissionChecksCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), WithLogger(observability.NopLogger()))

	store.SetRoles(ctx, []string{"ADMIN"})
	store.SetPermissions(ctx, []string{"users.read"})

	assert.True(t, store.HasRole("admin"))
	assert.True(t, store.HasRole("Admin"))
	assert.False(t, store.HasRole("auditor"))
	assert.True(t, store.HasPermission("Users.Read"))
	assert.False(t, store.HasPermission("users.write"))
}

func TestProjectionExcludesAccessTokenByDefault(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(storage, WithLogger(observability.NopLogger()))

	store.SetUser(ctx, api.User{ID: "u1", Username: "alice", Email: "alice@example.com"})
	store.SetAccessToken(ctx, "secret-bearer")
	store.SetCSRFToken(ctx, "C1")

	raw, err := storage.Load(ctx, SessionKey)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-bearer")
	assert.Contains(t, string(raw), "C1")
	assert.Contains(t, string(raw), "alice")
}

func TestProjectionIncludesAccessTokenWhenOptedIn(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(storage,
		WithLogger(observability.NopLogger()),
		WithPersistAccessToken(true),
	)

	store.SetAccessToken(ctx, "secret-bearer")

	raw, err := storage.Load(ctx, SessionKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "secret-bearer")
}

func TestProjectionExcludesMenus(t *testing.T) {
	ctx := context.Background()
	storage := newCountingStorage()
	store := NewStore(storage, WithLogger(observability.NopLogger()))

	store.SetMenus(ctx, []api.MenuNode{{ID: 1, Name: "Dashboard", Path: "/dash"}})

	assert.Equal(t, 0, storage.saveCount(), "menus are not part of the durable projection")
	assert.Len(t, store.Snapshot().Menus, 1)
}

func TestClearResetsEverythingAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(storage, WithLogger(observability.NopLogger()))

	store.SetUser(ctx, api.User{ID: "u1", Username: "alice"})
	store.SetAccessToken(ctx, "A1")
	store.SetCSRFToken(ctx, "C1")
	store.SetRoles(ctx, []string{"ADMIN"})
	store.SetMenus(ctx, []api.MenuNode{{ID: 1, Path: "/dash"}})

	notifications := 0
	store.Subscribe(func(Record) { notifications++ })

	store.Clear(ctx)
	snap := store.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.AccessToken)
	assert.Empty(t, snap.CSRFToken)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Roles)
	assert.Empty(t, snap.Menus)
	assert.Equal(t, 1, notifications)

	_, err := storage.Load(ctx, SessionKey)
	assert.ErrorIs(t, err, ErrNotFound)

	// Second clear is a no-op.
	store.Clear(ctx)
	assert.Equal(t, 1, notifications)
}

func TestLoadRestoresPersistedProjection(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	first := NewStore(storage, WithLogger(observability.NopLogger()))
	first.SetUser(ctx, api.User{ID: "u1", Username: "alice", Email: "alice@example.com"})
	first.SetCSRFToken(ctx, "C1")
	first.SetRoles(ctx, []string{"ADMIN"})
	first.SetPermissions(ctx, []string{"users.read"})

	second := NewStore(storage, WithLogger(observability.NopLogger()))
	require.NoError(t, second.Load(ctx))

	snap := second.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	require.NotNil(t, snap.User)
	assert.Equal(t, "alice", snap.User.Username)
	assert.Equal(t, "C1", snap.CSRFToken)
	assert.Equal(t, []string{"ADMIN"}, snap.Roles)
	assert.Equal(t, []string{"users.read"}, snap.Permissions)
	// Access token is not durable by default: absent after a reload.
	assert.Empty(t, snap.AccessToken)
}

func TestLoadToleratesMissingAndCorruptState(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(storage, WithLogger(observability.NopLogger()))

	require.NoError(t, store.Load(ctx))

	require.NoError(t, storage.Save(ctx, SessionKey, []byte("{not json")))
	require.NoError(t, store.Load(ctx))
	assert.False(t, store.IsAuthenticated())
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), WithLogger(observability.NopLogger()))
	store.SetRoles(ctx, []string{"ADMIN"})

	snap := store.Snapshot()
	snap.Roles[0] = strings.ToLower(snap.Roles[0])

	assert.Equal(t, []string{"ADMIN"}, store.Snapshot().Roles)
}
