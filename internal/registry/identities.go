package registry

import (
	"context"
	"errors"
	"sync"

	"relay/internal/store"
)

// Identities is the in-memory cache of known user identities, warmed by the
// auth routes on login/register and consulted before hitting the store.
// Entries are evicted when the user's connection goes away; the cache is a
// connection-scoped warm cache, not a durable directory.
type Identities struct {
	mu    sync.RWMutex
	users map[string]store.User
}

// NewIdentities constructs an empty identity cache.
func NewIdentities() *Identities {
	return &Identities{users: make(map[string]store.User)}
}

// Put inserts or refreshes a cached identity.
func (c *Identities) Put(u store.User) {
	if u.ID == "" {
		return
	}
	c.mu.Lock()
	c.users[u.ID] = u
	c.mu.Unlock()
}

// Get returns a cached identity, if present.
func (c *Identities) Get(id string) (store.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.users[id]
	return u, ok
}

// Remove evicts a cached identity. No-op for unknown ids.
func (c *Identities) Remove(id string) {
	c.mu.Lock()
	delete(c.users, id)
	c.mu.Unlock()
}

// Resolve returns the identity for id, checking the cache first and falling
// back to the store. A store hit warms the cache. Unknown users yield
// store.ErrNotFound.
func (c *Identities) Resolve(ctx context.Context, st store.Store, id string) (store.User, error) {
	if u, ok := c.Get(id); ok {
		return u, nil
	}

	u, err := st.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, err
	}
	c.Put(u)
	return u, nil
}
