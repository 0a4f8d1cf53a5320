package livestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOpts struct {
	Addr, Password, Namespace string
	DB                        int
	Timeout                   time.Duration
}

// Redis keeps each helmet subtree as one JSON document under {ns}:helmet:{id} and
// announces every write on {ns}:changes with the helmet id as payload.
type Redis struct {
	rdb     *redis.Client
	ns      string
	channel string
	logger  *log.Logger
}

const maxTxRetries = 8

func NewRedis(o RedisOpts, logger *log.Logger) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.Timeout,
		ReadTimeout:  o.Timeout,
		WriteTimeout: o.Timeout,
	})
	return newRedisWithClient(rdb, o.Namespace, logger)
}

func newRedisWithClient(rdb *redis.Client, ns string, logger *log.Logger) *Redis {
	if strings.TrimSpace(ns) == "" {
		ns = "minermonitor"
	}
	return &Redis{rdb: rdb, ns: ns, channel: ns + ":changes", logger: logger}
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) key(id string) string { return fmt.Sprintf("%s:helmet:%s", r.ns, id) }

// route splits a path into the helmet id and the path inside its document.
// An empty id means the whole helmets collection.
func route(path string) (id string, rest []string, err error) {
	parts := splitPath(path)
	if len(parts) == 0 || parts[0] != Root {
		return "", nil, fmt.Errorf("unsupported live store path %q", path)
	}
	if len(parts) == 1 {
		return "", nil, nil
	}
	return parts[1], parts[2:], nil
}

func (r *Redis) Get(ctx context.Context, path string) (any, error) {
	id, rest, err := route(path)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return r.getAll(ctx)
	}
	doc, err := r.getDoc(ctx, r.rdb, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return lookup(doc, rest), nil
}

func (r *Redis) getAll(ctx context.Context) (any, error) {
	prefix := r.key("")
	out := map[string]any{}
	iter := r.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), prefix)
		doc, err := r.getDoc(ctx, r.rdb, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			out[id] = doc
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) getDoc(ctx context.Context, c getter, id string) (map[string]any, error) {
	raw, err := c.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("corrupt helmet document %s: %w", id, err)
	}
	return doc, nil
}

func (r *Redis) Set(ctx context.Context, path string, value any) error {
	id, rest, err := route(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	if emptyValue(v) {
		v = nil
	}

	if id == "" {
		return r.replaceAll(ctx, v)
	}
	return r.update(ctx, id, func(doc map[string]any) map[string]any {
		if len(rest) == 0 {
			m, _ := v.(map[string]any)
			return m
		}
		if doc == nil {
			doc = map[string]any{}
		}
		assign(doc, rest, v)
		return doc
	})
}

func (r *Redis) Delete(ctx context.Context, path string) error {
	return r.Set(ctx, path, nil)
}

// update runs a read-modify-write of one helmet document under WATCH, retrying when
// another writer got in between.
func (r *Redis) update(ctx context.Context, id string, fn func(map[string]any) map[string]any) error {
	key := r.key(id)
	txf := func(tx *redis.Tx) error {
		doc, err := r.getDoc(ctx, tx, id)
		if err != nil {
			return err
		}
		doc = fn(doc)

		var payload []byte
		if len(doc) > 0 {
			if payload, err = json.Marshal(doc); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if payload == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, payload, 0)
			}
			pipe.Publish(ctx, r.channel, id)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("helmet %s: too much write contention", id)
}

func (r *Redis) replaceAll(ctx context.Context, v any) error {
	next, _ := v.(map[string]any)
	current, err := r.getAll(ctx)
	if err != nil {
		return err
	}
	if m, ok := current.(map[string]any); ok {
		for id := range m {
			if _, keep := next[id]; !keep {
				if err := r.update(ctx, id, func(map[string]any) map[string]any { return nil }); err != nil {
					return err
				}
			}
		}
	}
	for id, doc := range next {
		d, _ := doc.(map[string]any)
		if err := r.update(ctx, id, func(map[string]any) map[string]any { return d }); err != nil {
			return err
		}
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, path string) (<-chan Update, error) {
	id, _, err := route(path)
	if err != nil {
		return nil, err
	}

	ps := r.rdb.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Update, 1)
	push := func() {
		v, err := r.Get(ctx, path)
		if err != nil && ctx.Err() != nil {
			return
		}
		offerLatest(out, Update{Path: path, Value: v, Err: err})
	}
	push()

	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if id != "" && strings.TrimSpace(msg.Payload) != id {
					continue
				}
				push()
			}
		}
	}()

	r.logger.Printf("[livestore] subscribed to %s on %s", path, r.channel)
	return out, nil
}
