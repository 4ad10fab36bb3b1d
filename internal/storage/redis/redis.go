// Package redis stores session data in Redis and relays writes between
// sessions over a pub/sub channel.
package redis

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/storage"
)

// DefaultPrefix namespaces keys and the change channel.
const DefaultPrefix = "cart:"

// Backend implements storage.Backend on top of a Redis client. Each Backend
// has its own origin id, so several handles can share one client.
type Backend struct {
	client goredis.UniversalClient
	prefix string
	origin string
	lg     *zap.Logger
}

var _ storage.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix sets the key prefix. The change channel is prefix + "changes".
func WithPrefix(prefix string) Option {
	return func(b *Backend) { b.prefix = prefix }
}

// WithLogger sets the logger used for undecodable notifications.
func WithLogger(lg *zap.Logger) Option {
	return func(b *Backend) { b.lg = lg }
}

// WithOrigin overrides the generated origin id.
func WithOrigin(origin string) Option {
	return func(b *Backend) { b.origin = origin }
}

// New creates a Backend.
func New(client goredis.UniversalClient, opts ...Option) *Backend {
	b := &Backend{
		client: client,
		prefix: DefaultPrefix,
		origin: uuid.NewString(),
		lg:     zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Origin identifies this handle in change notifications.
func (b *Backend) Origin() string { return b.origin }

func (b *Backend) channel() string { return b.prefix + "changes" }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "redis get %q", key)
	}
	return v, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	msg := encodeChange(storage.Change{Key: key, Value: value, Origin: b.origin})
	_, err := b.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, b.prefix+key, value, 0)
		p.Publish(ctx, b.channel(), msg)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "redis set %q", key)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	msg := encodeChange(storage.Change{Key: key, Origin: b.origin})
	_, err := b.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, b.prefix+key)
		p.Publish(ctx, b.channel(), msg)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "redis delete %q", key)
	}
	return nil
}

// Watch subscribes to the change channel. The subscription is confirmed
// before Watch returns, so writes made afterwards are not missed.
func (b *Backend) Watch(ctx context.Context) (<-chan storage.Change, error) {
	ps := b.client.Subscribe(ctx, b.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	out := make(chan storage.Change)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				c, err := decodeChange([]byte(m.Payload))
				if err != nil {
					b.lg.Warn("Drop malformed change notification", zap.Error(err))
					continue
				}
				if c.Origin == b.origin {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// encodeChange renders the pub/sub envelope. Values are base64 so that any
// payload survives the trip.
func encodeChange(c storage.Change) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("origin", func(e *jx.Encoder) { e.Str(c.Origin) })
		e.Field("key", func(e *jx.Encoder) { e.Str(c.Key) })
		e.Field("value", func(e *jx.Encoder) {
			if c.Value == nil {
				e.Null()
				return
			}
			e.Base64(c.Value)
		})
	})
	return e.Bytes()
}

func decodeChange(data []byte) (storage.Change, error) {
	var c storage.Change
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "origin":
			c.Origin, err = d.Str()
		case "key":
			c.Key, err = d.Str()
		case "value":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c.Value, err = d.Base64()
			if err == nil && c.Value == nil {
				c.Value = []byte{}
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return storage.Change{}, errors.Wrap(err, "decode change")
	}
	if c.Key == "" {
		return storage.Change{}, errors.New("decode change: missing key")
	}
	return c, nil
}
