package coordinator

import (
	"sync"

	"zigbee-binary-sensor/internal/binarysensor"
)

type subscriber struct {
	id uint64
	fn binarysensor.UpdateFunc
}

// ClusterChannel is the live attribute cache of one cluster on one device
// endpoint. Updates are delivered to subscribers in subscription order, and
// concurrent updates are serialized so that values for the same attribute
// arrive in the order they were received.
type ClusterChannel struct {
	IEEE      string
	Endpoint  uint8
	ClusterID uint16
	Name      string

	pushMu sync.Mutex

	mu     sync.RWMutex
	attrs  map[string]any
	subs   []subscriber
	nextID uint64
}

// NewClusterChannel creates a channel seeded with cached attribute values.
func NewClusterChannel(ieee string, endpoint uint8, clusterID uint16, name string, seed map[string]any) *ClusterChannel {
	attrs := make(map[string]any, len(seed))
	for k, v := range seed {
		attrs[k] = v
	}
	return &ClusterChannel{
		IEEE:      ieee,
		Endpoint:  endpoint,
		ClusterID: clusterID,
		Name:      name,
		attrs:     attrs,
	}
}

// Attribute returns the cached value of an attribute.
func (c *ClusterChannel) Attribute(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.attrs[name]
	return v, ok
}

// Attributes returns a copy of the cache.
func (c *ClusterChannel) Attributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = v
	}
	return out
}

// Subscribe registers fn for every update. The returned function removes it.
func (c *ClusterChannel) Subscribe(fn binarysensor.UpdateFunc) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Update caches the value and pushes it to every subscriber.
func (c *ClusterChannel) Update(attrID uint16, name string, value any) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	c.mu.Lock()
	c.attrs[name] = value
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(attrID, name, value)
	}
}
