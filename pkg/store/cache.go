// rewrite/pkg/store/cache.go

package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/rewrite"
)

// VariablePrefix is prepended to a key to form the name of its variable.
const VariablePrefix = "shared."

const DefaultQueueSize = 1024

type update struct {
	key   string
	value interface{}
}

// Cache mirrors a set of shared variables in memory so rulesets can read them
// without blocking. Updates arrive over pubsub; writes are applied locally and
// queued for an asynchronous writer.
type Cache struct {
	store  Store
	logger zerolog.Logger

	mu     sync.RWMutex
	values map[string]interface{}

	writes  chan update
	dropped atomic.Uint64
	applied atomic.Uint64
}

func NewCache(s Store, queueSize int) *Cache {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Cache{
		store:  s,
		logger: logging.Component("cache"),
		values: make(map[string]interface{}),
		writes: make(chan update, queueSize),
	}
}

// Preload fetches the current value of keys.
func (c *Cache) Preload(ctx context.Context, keys ...string) error {
	vals, err := c.store.MGetVars(ctx, keys...)
	if err != nil {
		return logging.NewError(logging.ErrorTypeStore, "failed to preload shared variables", err, nil)
	}
	c.mu.Lock()
	for k, v := range vals {
		if v == nil {
			delete(c.values, k)
			continue
		}
		c.values[k] = v
	}
	c.mu.Unlock()
	c.logger.Info().Int("keys", len(keys)).Msg("Preloaded shared variables")
	return nil
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Cache) put(key string, value interface{}) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// Keys returns the cached keys in order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply handles one "key=json" update message.
func (c *Cache) Apply(payload string) error {
	key, value, err := ParseUpdate(payload)
	if err != nil {
		return err
	}
	c.put(key, value)
	c.applied.Add(1)
	return nil
}

// Watch applies updates published on channels until ctx is done.
func (c *Cache) Watch(ctx context.Context, channels ...string) error {
	pubsub, err := c.store.Subscribe(ctx, channels...)
	if err != nil {
		return logging.NewError(logging.ErrorTypeStore, "failed to subscribe", err,
			map[string]interface{}{"channels": channels})
	}
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := c.Apply(msg.Payload); err != nil {
				c.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("Ignoring malformed update")
			}
		}
	}
}

// Enqueue updates key locally and queues the write. It reports false, and
// changes nothing, when the queue is full.
func (c *Cache) Enqueue(key string, value interface{}) bool {
	select {
	case c.writes <- update{key: key, value: value}:
		c.put(key, value)
		return true
	default:
		c.dropped.Add(1)
		c.logger.Warn().Str("key", key).Msg("Write queue full, dropping update")
		return false
	}
}

// RunWriter publishes queued writes until ctx is done, then drains what is left.
func (c *Cache) RunWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.drain()
			return
		case u := <-c.writes:
			c.write(ctx, u)
		}
	}
}

func (c *Cache) drain() {
	for {
		select {
		case u := <-c.writes:
			c.write(context.Background(), u)
		default:
			return
		}
	}
}

func (c *Cache) write(ctx context.Context, u update) {
	if err := c.store.SetAndPublishVar(ctx, u.key, u.value); err != nil {
		logging.LogError(c.logger, logging.NewError(logging.ErrorTypeStore, "failed to write shared variable", err,
			map[string]interface{}{"key": u.key}))
	}
}

// Stats reports queue and update counters.
func (c *Cache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"Keys":           len(c.Keys()),
		"QueuedWrites":   len(c.writes),
		"DroppedWrites":  c.dropped.Load(),
		"AppliedUpdates": c.applied.Load(),
	}
}

// Bind registers key as the callback variable VariablePrefix+key. A key with no
// value reads as the type's zero value; a value of the wrong JSON type fails.
func (c *Cache) Bind(vars *rewrite.Variables, key string, typ rewrite.Type, writable bool) (*rewrite.Variable, error) {
	get := func(req rewrite.Request, v *rewrite.Variable) (rewrite.Value, bool) {
		raw, ok := c.Get(key)
		if !ok || raw == nil {
			return rewrite.Zero(typ), true
		}
		return toValue(typ, raw)
	}

	var set rewrite.SetFunc
	if writable {
		set = func(req rewrite.Request, v *rewrite.Variable, val rewrite.Value) bool {
			if val.Type() != typ {
				return false
			}
			return c.Enqueue(key, jsonValue(val))
		}
	}

	return vars.RegisterCallback(VariablePrefix+key, typ, get, set)
}

// KeysOf returns the shared keys among variable names.
func KeysOf(names []string) []string {
	var keys []string
	for _, n := range names {
		if strings.HasPrefix(n, VariablePrefix) {
			keys = append(keys, strings.TrimPrefix(n, VariablePrefix))
		}
	}
	return keys
}

func toValue(typ rewrite.Type, raw interface{}) (rewrite.Value, bool) {
	switch typ {
	case rewrite.TypeBool:
		b, ok := raw.(bool)
		return rewrite.BoolValue(b), ok
	case rewrite.TypeInt:
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return rewrite.Value{}, false
		}
		return rewrite.IntValue(int32(f)), true
	case rewrite.TypeString:
		s, ok := raw.(string)
		return rewrite.StringValue([]byte(s)), ok
	default:
		return rewrite.Value{}, false
	}
}

func jsonValue(val rewrite.Value) interface{} {
	switch val.Type() {
	case rewrite.TypeBool:
		return val.AsBool()
	case rewrite.TypeInt:
		return float64(val.AsInt())
	default:
		return string(val.AsString())
	}
}
