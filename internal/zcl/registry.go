package zcl

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds all known ZCL cluster definitions.
type Registry struct {
	mu        sync.RWMutex
	clusters  map[uint16]*ClusterDef
	byChannel map[string]uint16
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters:  make(map[uint16]*ClusterDef),
		byChannel: make(map[string]uint16),
		logger:    logger,
	}
}

// Register adds a cluster definition to the registry, merging into an
// existing definition with the same ID.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clusters[c.ID]; ok {
		oldChannel := existing.Channel
		existing.Merge(&c)
		if existing.Channel != oldChannel {
			delete(r.byChannel, oldChannel)
		}
		if existing.Channel != "" {
			r.byChannel[existing.Channel] = c.ID
		}
		r.logger.Debug("cluster merged", "id", fmt.Sprintf("0x%04X", c.ID), "channel", existing.Channel)
		return
	}
	r.clusters[c.ID] = c.DeepCopy()
	if c.Channel != "" {
		r.byChannel[c.Channel] = c.ID
	}
	r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "channel", c.Channel)
}

// Get returns a cluster definition by ID, or nil if not found.
// The returned value is a deep copy; callers may modify it safely.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil {
		return nil
	}
	return c.DeepCopy()
}

// ByChannel returns the cluster registered under a channel name.
func (r *Registry) ByChannel(channel string) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byChannel[channel]
	if !ok {
		return nil
	}
	return r.clusters[id].DeepCopy()
}

// Channel returns the channel name for a cluster ID, or "" when unknown.
func (r *Registry) Channel(id uint16) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.clusters[id]; c != nil {
		return c.Channel
	}
	return ""
}

// AttributeName resolves an attribute ID to its name. Unknown attributes are
// named by their hex ID so they still flow through the channel.
func (r *Registry) AttributeName(clusterID, attrID uint16) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.clusters[clusterID]; c != nil {
		if a := c.FindAttribute(attrID); a != nil {
			return a.Name
		}
	}
	return fmt.Sprintf("0x%04X", attrID)
}

// AttributeID resolves an attribute name on a cluster to its ID.
func (r *Registry) AttributeID(clusterID uint16, name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.clusters[clusterID]; c != nil {
		if a := c.FindAttributeByName(name); a != nil {
			return a.ID, true
		}
	}
	return 0, false
}

// All returns all registered cluster definitions sorted by ID.
// Each entry is a deep copy; callers may modify them safely.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, *c.DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
