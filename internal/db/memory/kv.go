package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/tablekit/internal/db"
)

// Compile-time check: KV implements db.KVStore.
var _ db.KVStore = (*KV)(nil)

type entry struct {
	value   []byte
	expires time.Time
}

// KV is an in-process db.KVStore with per-key expiry.
type KV struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

// KVOption configures a KV.
type KVOption func(*KV)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) KVOption {
	return func(kv *KV) { kv.now = now }
}

// NewKV creates an empty KV.
func NewKV(opts ...KVOption) *KV {
	kv := &KV{items: make(map[string]entry), now: time.Now}
	for _, opt := range opts {
		opt(kv)
	}
	return kv
}

// Get retrieves a live value by key.
func (kv *KV) Get(_ context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	e, ok := kv.lookup(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a value without expiry.
func (kv *KV) Set(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	kv.items[key] = entry{value: append([]byte(nil), value...)}
	kv.mu.Unlock()
	return nil
}

// SetWithTTL stores a value that expires after ttl.
func (kv *KV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	kv.items[key] = entry{value: append([]byte(nil), value...), expires: kv.now().Add(ttl)}
	kv.mu.Unlock()
	return nil
}

// IncrBy increments an integer value, creating it at zero.
func (kv *KV) IncrBy(_ context.Context, key string, val int64) (int64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	var n int64
	e, ok := kv.lookup(key)
	if ok {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, &db.Error{Op: db.OpIncrBy, Err: err}
		}
		n = parsed
	}
	n += val
	kv.items[key] = entry{value: []byte(strconv.FormatInt(n, 10)), expires: e.expires}
	return n, nil
}

// Del removes a key.
func (kv *KV) Del(_ context.Context, key string) error {
	kv.mu.Lock()
	delete(kv.items, key)
	kv.mu.Unlock()
	return nil
}

// lookup must be called with mu held.
func (kv *KV) lookup(key string) (entry, bool) {
	e, ok := kv.items[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !kv.now().Before(e.expires) {
		delete(kv.items, key)
		return entry{}, false
	}
	return e, true
}
