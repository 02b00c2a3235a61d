package zcl

// AttributeDef defines a ZCL attribute. Name is the snake_case key that
// binary sensor descriptors refer to.
type AttributeDef struct {
	ID   uint16 `json:"id"`
	Name string `json:"name"`
	Type uint8  `json:"type"`
}

// ClusterDef defines a ZCL cluster. Channel is the snake_case name match
// rules are indexed by (e.g. "on_off", "ias_zone").
type ClusterDef struct {
	ID           uint16         `json:"id"`
	Name         string         `json:"name"`
	Channel      string         `json:"channel"`
	Manufacturer bool           `json:"manufacturer_specific,omitempty"`
	Attributes   []AttributeDef `json:"attributes,omitempty"`
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id uint16) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindAttributeByName looks up an attribute by its snake_case name.
func (c *ClusterDef) FindAttributeByName(name string) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the cluster definition.
func (c *ClusterDef) DeepCopy() *ClusterDef {
	cp := *c
	if c.Attributes != nil {
		cp.Attributes = make([]AttributeDef, len(c.Attributes))
		copy(cp.Attributes, c.Attributes)
	}
	return &cp
}

// Merge adds attributes from another definition (device file overlay).
// A non-empty Channel or Name in the overlay replaces the existing one.
func (c *ClusterDef) Merge(other *ClusterDef) {
	if other.Name != "" {
		c.Name = other.Name
	}
	if other.Channel != "" {
		c.Channel = other.Channel
	}
	for _, attr := range other.Attributes {
		if c.FindAttribute(attr.ID) == nil {
			c.Attributes = append(c.Attributes, attr)
		}
	}
}
