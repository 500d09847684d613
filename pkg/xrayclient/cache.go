package xrayclient

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/atomic"

	"xui-api/internal/constants"
)

const (
	inboundsKey      = "inbounds"
	onlineClientsKey = "clients:online"
)

// Emails and protocol identifiers live in separate key namespaces so that an
// email equal to some other client's identifier never shadows it.
func inboundKey(id int) string {
	return fmt.Sprintf("inbound:%d", id)
}

func optionsByEmailKey(email string) string {
	return "client:options:email:" + email
}

func optionsByIDKey(identifier string) string {
	return "client:options:key:" + identifier
}

func identifierByEmailKey(email string) string {
	return "client:key:" + email
}

func statByEmailKey(email string) string {
	return "client:stat:email:" + email
}

func statByIDKey(identifier string) string {
	return "client:stat:key:" + identifier
}

func ipsKey(identifier string) string {
	return "client:ips:" + identifier
}

// keyedCache is a TTL store where every alias of an entity is an
// independent entry. Stored values are never mutated in place.
type keyedCache struct {
	store *cache.Cache
	ttl   *atomic.Duration
}

func newKeyedCache(ttl time.Duration) *keyedCache {
	return &keyedCache{
		store: cache.New(cache.NoExpiration, constants.CacheCleanupInterval*time.Minute),
		ttl:   atomic.NewDuration(ttl),
	}
}

// expiration maps a TTL of zero (or less) to entries that never expire
func (k *keyedCache) expiration() time.Duration {
	ttl := k.ttl.Load()
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

func (k *keyedCache) setTTL(ttl time.Duration) {
	k.ttl.Store(ttl)
}

func (k *keyedCache) set(key string, value interface{}) {
	k.store.Set(key, value, k.expiration())
}

func (k *keyedCache) get(key string) (interface{}, bool) {
	return k.store.Get(key)
}

func (k *keyedCache) has(key string) bool {
	_, found := k.store.Get(key)
	return found
}

func (k *keyedCache) delete(keys ...string) {
	for _, key := range keys {
		k.store.Delete(key)
	}
}

func (k *keyedCache) invalidateAll() {
	k.store.Flush()
}

func (k *keyedCache) len() int {
	return k.store.ItemCount()
}

// cached returns the entry stored under key when it holds a T
func cached[T any](k *keyedCache, key string) (T, bool) {
	var zero T
	value, found := k.get(key)
	if !found {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
