package menu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablerohq/tablero/pkg/api"
	"github.com/tablerohq/tablero/pkg/observability"
	"github.com/tablerohq/tablero/pkg/session"
)

func TestStoreLoadedDistinguishesEmptyFromUnfetched(t *testing.T) {
	ctx := context.Background()
	store := NewStore(session.NewMemoryStorage(), observability.NopLogger())

	assert.False(t, store.Loaded())
	assert.Empty(t, store.Menus())

	// A user with zero menus is still "loaded".
	store.SetMenus(ctx, nil)
	assert.True(t, store.Loaded())
	assert.Empty(t, store.Menus())
}

func TestStorePersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()

	first := NewStore(storage, observability.NopLogger())
	first.SetMenus(ctx, []api.MenuNode{{ID: 1, Name: "Dashboard", Path: "/dashboard"}})

	second := NewStore(storage, observability.NopLogger())
	require.NoError(t, second.Load(ctx))
	assert.True(t, second.Loaded())
	require.Len(t, second.Menus(), 1)
	assert.Equal(t, "/dashboard", second.Menus()[0].Path)
}

func TestStoreClearRemovesPersistedCopy(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	store := NewStore(storage, observability.NopLogger())

	store.SetMenus(ctx, []api.MenuNode{{ID: 1, Path: "/dashboard"}})
	store.Clear(ctx)

	assert.False(t, store.Loaded())
	assert.Empty(t, store.Menus())
	_, err := storage.Load(ctx, StorageKey)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// Second clear is a no-op.
	store.Clear(ctx)
}

func TestStoreLoadToleratesCorruptState(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, StorageKey, []byte("{nope")))

	store := NewStore(storage, observability.NopLogger())
	require.NoError(t, store.Load(ctx))
	assert.False(t, store.Loaded())
}

func TestStoreMenusReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore(session.NewMemoryStorage(), observability.NopLogger())
	store.SetMenus(ctx, []api.MenuNode{{ID: 1, Name: "Dashboard", Path: "/dashboard"}})

	menus := store.Menus()
	menus[0].Name = "Mutated"
	assert.Equal(t, "Dashboard", store.Menus()[0].Name)
}

func TestStoreFlattenedDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := NewStore(session.NewMemoryStorage(), observability.NopLogger())
	store.SetMenus(ctx, []api.MenuNode{
		{ID: 1, Path: "/a", Children: []api.MenuNode{{ID: 2, Path: "/a/b"}}},
		{ID: 3, Path: "/a"},
	})

	flat := store.Flattened()
	require.Len(t, flat, 2)
	assert.Equal(t, int64(1), flat[0].ID)
	assert.Equal(t, int64(2), flat[1].ID)
}
