// Package memory is an in-process storage backend. A Hub is the store shared
// by every session of one process; each Tab is one session's handle on it.
package memory

import (
	"bytes"
	"context"
	"strconv"
	"sync"

	"github.com/xenking/storefront-cart/internal/storage"
)

// watchBuffer bounds undelivered changes per watcher. A watcher that falls
// this far behind misses changes; the next one still carries a full value.
const watchBuffer = 64

// Hub holds the shared values. The zero value is not usable; call NewHub.
type Hub struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[*watcher]struct{}
	next     int
}

type watcher struct {
	origin string
	ch     chan storage.Change
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		values:   make(map[string][]byte),
		watchers: make(map[*watcher]struct{}),
	}
}

// Tab returns a new handle with its own origin.
func (h *Hub) Tab() *Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	return &Tab{hub: h, origin: "tab-" + strconv.Itoa(h.next)}
}

func (h *Hub) put(origin, key string, value []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if value == nil {
		delete(h.values, key)
	} else {
		h.values[key] = bytes.Clone(value)
	}
	for w := range h.watchers {
		if w.origin == origin {
			continue
		}
		c := storage.Change{Key: key, Origin: origin}
		if value != nil {
			c.Value = bytes.Clone(value)
		}
		select {
		case w.ch <- c:
		default:
		}
	}
}

// Tab is a session handle. It implements storage.Backend.
type Tab struct {
	hub    *Hub
	origin string
}

var _ storage.Backend = (*Tab)(nil)

// Origin identifies the writer in change notifications.
func (t *Tab) Origin() string { return t.origin }

func (t *Tab) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.hub.mu.RLock()
	defer t.hub.mu.RUnlock()

	v, ok := t.hub.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (t *Tab) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	t.hub.put(t.origin, key, value)
	return nil
}

func (t *Tab) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.hub.put(t.origin, key, nil)
	return nil
}

func (t *Tab) Watch(ctx context.Context) (<-chan storage.Change, error) {
	w := &watcher{origin: t.origin, ch: make(chan storage.Change, watchBuffer)}

	t.hub.mu.Lock()
	t.hub.watchers[w] = struct{}{}
	t.hub.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.hub.mu.Lock()
		delete(t.hub.watchers, w)
		close(w.ch)
		t.hub.mu.Unlock()
	}()
	return w.ch, nil
}
