package order

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultIdentityTTL = 24 * time.Hour

// Identity is the diner contact remembered for one seating.
type Identity struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdentityCache remembers who sits at a table so returning diners in the same
// seating are not prompted again. Entries expire after ttl and are dropped
// when the table is cleared.
type IdentityCache struct {
	mu      sync.RWMutex
	entries map[string]Identity
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewIdentityCache(ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &IdentityCache{
		entries: make(map[string]Identity),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func identityKey(restaurantID uuid.UUID, tableNumber string) string {
	return restaurantID.String() + "/" + tableNumber
}

func (c *IdentityCache) Get(restaurantID uuid.UUID, tableNumber string) (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.entries[identityKey(restaurantID, tableNumber)]
	if !ok || !c.now().Before(id.ExpiresAt) {
		return Identity{}, false
	}
	return id, true
}

// Set stores name and phone and returns the stored entry with its expiry.
func (c *IdentityCache) Set(restaurantID uuid.UUID, tableNumber, name, phone string) Identity {
	id := Identity{Name: name, Phone: phone, ExpiresAt: c.now().Add(c.ttl)}

	c.mu.Lock()
	c.entries[identityKey(restaurantID, tableNumber)] = id
	c.mu.Unlock()
	return id
}

func (c *IdentityCache) Invalidate(restaurantID uuid.UUID, tableNumber string) {
	c.mu.Lock()
	delete(c.entries, identityKey(restaurantID, tableNumber))
	c.mu.Unlock()
}

func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries.
func (c *IdentityCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, id := range c.entries {
		if !now.Before(id.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Start sweeps expired entries every few minutes until Stop is called.
func (c *IdentityCache) Start(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
	return nil
}

func (c *IdentityCache) Stop(ctx context.Context) error {
	c.once.Do(func() { close(c.stop) })
	return nil
}
