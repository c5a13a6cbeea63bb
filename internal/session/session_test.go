package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

func newSession(t *testing.T) (*Session, *cache.Store) {
	t.Helper()
	store := cache.New(cache.NewMemoryKV(), zap.NewNop())
	return Open(context.Background(), store, 0), store
}

func TestClearSelectionsKeepsAuthAndArea(t *testing.T) {
	ctx := context.Background()
	s, store := newSession(t)

	require.True(t, s.SaveCredentials(ctx, Credentials{Token: "tok", RefreshToken: "ref", Role: "user", UserID: 42}))
	require.True(t, s.SetArea(ctx, model.Area{ID: 3, Name: "Lobby", Type: "1"}))
	require.True(t, s.SaveSelection(ctx, KeySelectedTasks, KeyTaskProgress, []model.ID{1}, []model.ProgressItem{{ID: 1, Status: 1}}))
	require.True(t, s.SetPhotoURL(ctx, model.SlotBefore, "http://img/b"))

	require.True(t, s.ClearSelections(ctx))

	creds, ok := s.Credentials(ctx)
	require.True(t, ok)
	require.Equal(t, Credentials{Token: "tok", RefreshToken: "ref", Role: "user", UserID: 42}, creds)
	_, ok = s.Area(ctx)
	require.True(t, ok)
	require.Empty(t, s.Selection(ctx, KeySelectedTasks))
	_, ok = s.PhotoURL(ctx, model.SlotBefore)
	require.False(t, ok)
	require.True(t, store.Has(ctx, KeyVersion))
}

func TestClearWorkAndAuthAreDisjoint(t *testing.T) {
	ctx := context.Background()
	s, store := newSession(t)
	require.True(t, s.SaveCredentials(ctx, Credentials{Token: "tok", UserID: 1}))
	require.True(t, s.SetProgressBucketID(ctx, 10))

	require.True(t, s.ClearWork(ctx))
	require.True(t, store.Has(ctx, KeyToken))
	_, ok := s.ProgressBucketID(ctx)
	require.False(t, ok)

	require.True(t, s.ClearAuth(ctx))
	_, ok = s.Credentials(ctx)
	require.False(t, ok)
}

func TestOpenDropsWorkFromOlderSchema(t *testing.T) {
	ctx := context.Background()
	store := cache.New(cache.NewMemoryKV(), zap.NewNop())
	require.True(t, store.Set(ctx, KeyVersion, 0, 0))
	require.True(t, store.Set(ctx, KeySelectedTasks, []int{9}, 0))
	require.True(t, store.Set(ctx, KeyToken, "tok", 0))

	s := Open(ctx, store, 0)
	require.Empty(t, s.Selection(ctx, KeySelectedTasks))
	require.True(t, store.Has(ctx, KeyToken))

	var version int
	require.True(t, store.Get(ctx, KeyVersion, &version))
	require.Equal(t, SchemaVersion, version)
}

func TestPhotosCollectsSlots(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t)
	require.True(t, s.SetPhotoURL(ctx, model.SlotAfter, "http://img/a"))
	photos := s.Photos(ctx)
	require.Nil(t, photos.Before)
	require.Equal(t, "http://img/a", *photos.After)
	require.Equal(t, "afterPhotoUrl", PhotoKey(model.SlotAfter))
}
