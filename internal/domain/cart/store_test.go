package cart

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront-cart/internal/storage"
	"github.com/xenking/storefront-cart/internal/storage/memory"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

// flakyBackend fails reads and writes while broken is set.
type flakyBackend struct {
	storage.Backend
	broken atomic.Bool
}

var errBroken = errors.New("quota exceeded")

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.broken.Load() {
		return nil, errBroken
	}
	return f.Backend.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.broken.Load() {
		return errBroken
	}
	return f.Backend.Set(ctx, key, value)
}

func (f *flakyBackend) Delete(ctx context.Context, key string) error {
	if f.broken.Load() {
		return errBroken
	}
	return f.Backend.Delete(ctx, key)
}

func newStore(t *testing.T, b storage.Backend) *Store {
	t.Helper()
	s, err := NewStore(b, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return s
}

func TestStore_PersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	hub := memory.NewHub()

	first := newStore(t, hub.Tab())
	first.AddItem(ctx, shirt, variant(shirt, "xl"))
	first.AddItem(ctx, hat, nil)
	first.UpdateQuantity(ctx, "cap", 2)

	raw, err := hub.Tab().Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"product"`)

	reloaded := newStore(t, hub.Tab())
	st := reloaded.Load(ctx)
	require.Len(t, st.Items, 2)
	assert.True(t, dec("550").Equal(st.Total))
	assert.False(t, reloaded.Degraded())

	reloaded.Clear(ctx)
	_, err = hub.Tab().Get(ctx, storage.KeyCart)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_LoadMalformed(t *testing.T) {
	ctx := context.Background()
	tab := memory.NewHub().Tab()
	require.NoError(t, tab.Set(ctx, storage.KeyCart, []byte(`{"items":[{`)))

	s := newStore(t, tab)
	st := s.Load(ctx)
	assert.True(t, st.IsEmpty())
	assert.True(t, st.Total.IsZero())
}

func TestStore_DegradesOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	b := &flakyBackend{Backend: memory.NewHub().Tab()}
	s := newStore(t, b)

	b.broken.Store(true)
	st := s.AddItem(ctx, hat, nil)
	require.Len(t, st.Items, 1, "mutation must succeed in memory")
	assert.True(t, s.Degraded())

	st = s.AddItem(ctx, hat, nil)
	it, _ := st.Find("cap")
	assert.Equal(t, 2, it.Qty())

	b.broken.Store(false)
	s.AddItem(ctx, shirt, nil)
	assert.False(t, s.Degraded())

	raw, err := b.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	persisted, err := Rehydrate(raw)
	require.NoError(t, err)
	assert.Len(t, persisted.Items, 2)
}

func TestStore_LoadReadFailure(t *testing.T) {
	b := &flakyBackend{Backend: memory.NewHub().Tab()}
	b.broken.Store(true)
	s := newStore(t, b)

	st := s.Load(context.Background())
	assert.True(t, st.IsEmpty())
	assert.True(t, s.Degraded())
}

func TestStore_SyncConverges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := memory.NewHub()

	a := newStore(t, hub.Tab())
	b := newStore(t, hub.Tab())

	var seen atomic.Int32
	b.OnChange(func(State) { seen.Add(1) })

	done, err := b.Sync(ctx)
	require.NoError(t, err)

	a.AddItem(ctx, hat, nil)
	a.AddItem(ctx, hat, nil)
	require.Eventually(t, func() bool {
		it, ok := b.State().Find("cap")
		return ok && it.Qty() == 2
	}, timeout, tick)
	assert.True(t, dec("300").Equal(b.State().Total))

	// One notification per foreign write.
	require.Eventually(t, func() bool { return seen.Load() == 2 }, timeout, tick)

	a.Clear(ctx)
	require.Eventually(t, func() bool { return b.State().IsEmpty() }, timeout, tick)

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("sync did not stop")
	}
}

func TestStore_SyncMalformedResets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := memory.NewHub()

	a := hub.Tab()
	b := newStore(t, hub.Tab())
	b.AddItem(ctx, hat, nil)

	_, err := b.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, storage.KeyPendingCoupon, []byte("SAVE10")))
	require.NoError(t, a.Set(ctx, storage.KeyCart, []byte("garbage")))

	require.Eventually(t, func() bool { return b.State().IsEmpty() }, timeout, tick)
}
