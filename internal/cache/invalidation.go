package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Query keys
const (
	KeyMe                   = "me"
	KeyInventory            = "inventory"
	KeyProjects             = "projects"
	KeyAzureSubscriptions   = "azureSubscriptions"
	keyResourceGroupsPrefix = "resourceGroups:"
)

// ResourceGroupsKey is the key of one subscription's persisted resource groups
func ResourceGroupsKey(subscriptionID string) string {
	return keyResourceGroupsPrefix + subscriptionID
}

// EventType names a mutation that makes cached queries stale
type EventType string

const (
	InventoryChanged      EventType = "inventory_changed"
	ProjectsChanged       EventType = "projects_changed"
	ResourceGroupsChanged EventType = "resource_groups_changed"
	LoggedOut             EventType = "logged_out"
)

// Event describes a mutation. SubscriptionID narrows ResourceGroupsChanged;
// empty means every subscription.
type Event struct {
	Type           EventType
	SubscriptionID string
}

// InvalidationRule maps an event to the key patterns it invalidates. A
// pattern ending in "*" is a prefix; "*" alone clears the scope.
type InvalidationRule struct {
	EventType EventType
	Handler   func(event Event) []string
}

var rules = []InvalidationRule{
	{
		// a new credential can expose new subscriptions
		EventType: InventoryChanged,
		Handler: func(Event) []string {
			return []string{KeyInventory, KeyAzureSubscriptions, KeyProjects}
		},
	},
	{
		EventType: ProjectsChanged,
		Handler: func(Event) []string {
			return []string{KeyProjects}
		},
	},
	{
		EventType: ResourceGroupsChanged,
		Handler: func(e Event) []string {
			if e.SubscriptionID == "" {
				return []string{keyResourceGroupsPrefix + "*"}
			}
			return []string{ResourceGroupsKey(e.SubscriptionID)}
		},
	},
	{
		EventType: LoggedOut,
		Handler: func(Event) []string {
			return []string{"*"}
		},
	},
}

// QueryCache caches backend reads per session token
type QueryCache struct {
	store *TTLCache
}

// NewQueryCache wraps store
func NewQueryCache(store *TTLCache) *QueryCache {
	return &QueryCache{store: store}
}

// Store returns the underlying TTL cache
func (q *QueryCache) Store() *TTLCache {
	return q.store
}

// Scope returns the view of the cache belonging to token. Tokens are hashed
// so they never appear in keys.
func (q *QueryCache) Scope(token string) *Scope {
	sum := sha256.Sum256([]byte(token))
	return &Scope{store: q.store, namespace: hex.EncodeToString(sum[:8]) + "/"}
}

// Scope is one session's namespace in a QueryCache
type Scope struct {
	store     *TTLCache
	namespace string
}

// GetWithLoader returns the cached value for key or loads it
func (s *Scope) GetWithLoader(key string, loader func() (interface{}, error)) (interface{}, error) {
	return s.store.GetWithLoader(s.namespace+key, loader)
}

// Invalidate removes the given keys
func (s *Scope) Invalidate(keys ...string) {
	for _, key := range keys {
		s.store.Delete(s.namespace + key)
	}
}

// InvalidatePrefix removes every key starting with prefix
func (s *Scope) InvalidatePrefix(prefix string) {
	s.store.DeletePrefix(s.namespace + prefix)
}

// Clear removes every key of this scope
func (s *Scope) Clear() {
	s.store.DeletePrefix(s.namespace)
}

// Apply invalidates the keys the event makes stale
func (s *Scope) Apply(event Event) {
	for _, rule := range rules {
		if rule.EventType != event.Type {
			continue
		}
		for _, pattern := range rule.Handler(event) {
			s.invalidatePattern(pattern)
		}
	}
}

func (s *Scope) invalidatePattern(pattern string) {
	switch {
	case pattern == "*":
		s.Clear()
	case strings.HasSuffix(pattern, "*"):
		s.InvalidatePrefix(strings.TrimSuffix(pattern, "*"))
	default:
		s.Invalidate(pattern)
	}
}

// Load is a typed GetWithLoader
func Load[T any](s *Scope, key string, loader func() (T, error)) (T, error) {
	val, err := s.GetWithLoader(key, func() (interface{}, error) {
		return loader()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := val.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: key %q holds %T", key, val)
	}
	return typed, nil
}
