package authstate

import (
	"context"
	"errors"
	"testing"

	"github.com/jobportal/authweb/internal/userapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	loadErr error
	saveErr error
	saves   int
}

func (b *failingBackend) Load(context.Context, string) (State, error) { return State{}, b.loadErr }
func (b *failingBackend) Save(context.Context, string, State) error {
	b.saves++
	return b.saveErr
}
func (b *failingBackend) Delete(context.Context, string) error { return nil }

func TestOpen_NewSessionStartsSignedOut(t *testing.T) {
	store, err := Open(context.Background(), NewMemoryBackend(), "sess-1")
	require.NoError(t, err)

	st := store.Snapshot()
	assert.False(t, st.Loading)
	assert.False(t, st.SignedIn())
	assert.Equal(t, "sess-1", store.SessionID())
}

func TestOpen_LoadsPersistedState(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "sess-1", State{User: &userapi.User{ID: "u1"}}))

	store, err := Open(ctx, backend, "sess-1")
	require.NoError(t, err)
	require.True(t, store.Snapshot().SignedIn())
	assert.Equal(t, "u1", store.Snapshot().User.ID)
}

func TestOpen_BackendError(t *testing.T) {
	_, err := Open(context.Background(), &failingBackend{loadErr: errors.New("down")}, "s")
	assert.Error(t, err)
}

func TestStore_TransitionsWriteThrough(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, err := Open(ctx, backend, "sess-1")
	require.NoError(t, err)

	require.NoError(t, store.SetLoading(ctx, true))
	persisted, err := backend.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, persisted.Loading)

	require.NoError(t, store.SetUser(ctx, &userapi.User{ID: "u1"}))
	require.NoError(t, store.SetLoading(ctx, false))

	persisted, err = backend.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, persisted.Loading)
	assert.Equal(t, "u1", persisted.User.ID)
}

func TestStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	a, _ := Open(ctx, backend, "sess-1")
	b, _ := Open(ctx, backend, "sess-1")

	require.NoError(t, a.SetLoading(ctx, true))
	require.NoError(t, b.SetLoading(ctx, false))

	persisted, _ := backend.Load(ctx, "sess-1")
	assert.False(t, persisted.Loading)
}

func TestStore_SaveErrorStillUpdatesSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{loadErr: ErrSessionNotFound, saveErr: errors.New("write failed")}
	store, err := Open(ctx, backend, "s")
	require.NoError(t, err)

	err = store.SetLoading(ctx, true)
	assert.Error(t, err)
	assert.True(t, store.Snapshot().Loading)
	assert.Equal(t, 1, backend.saves)
}

func TestStore_SubscribeReceivesEveryTransition(t *testing.T) {
	ctx := context.Background()
	store, _ := Open(ctx, NewMemoryBackend(), "s")

	var seen []State
	unsubscribe := store.Subscribe(func(st State) { seen = append(seen, st) })

	store.SetLoading(ctx, true)
	store.SetUser(ctx, &userapi.User{ID: "u1"})
	store.SetLoading(ctx, false)
	unsubscribe()
	store.SetLoading(ctx, true)

	require.Len(t, seen, 3)
	assert.True(t, seen[0].Loading)
	assert.True(t, seen[1].SignedIn())
	assert.False(t, seen[2].Loading)
}

func TestStore_ClearSignsOut(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, _ := Open(ctx, backend, "s")
	store.SetUser(ctx, &userapi.User{ID: "u1"})
	require.Equal(t, 1, backend.Len())

	var last State
	store.Subscribe(func(st State) { last = st })
	require.NoError(t, store.Clear(ctx))

	assert.False(t, store.Snapshot().SignedIn())
	assert.False(t, last.SignedIn())
	assert.Equal(t, 0, backend.Len())
}
