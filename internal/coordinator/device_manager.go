package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"zigbee-binary-sensor/internal/binarysensor"
	"zigbee-binary-sensor/internal/match"
	"zigbee-binary-sensor/internal/store"
	"zigbee-binary-sensor/internal/zcl"
)

// DeviceInfo is the signature announced for a device.
type DeviceInfo struct {
	IEEE         string           `json:"ieee"`
	Manufacturer string           `json:"manufacturer"`
	Model        string           `json:"model,omitempty"`
	QuirkID      string           `json:"quirk_id,omitempty"`
	Endpoints    []store.Endpoint `json:"endpoints"`
}

// Report is one attribute report. Either Value carries an already decoded
// value, or Type and Hex carry the raw ZCL encoding.
type Report struct {
	IEEE      string `json:"ieee"`
	Endpoint  uint8  `json:"endpoint"`
	Cluster   uint16 `json:"cluster"`
	Attribute uint16 `json:"attribute"`
	Name      string `json:"name,omitempty"`
	Type      uint8  `json:"type,omitempty"`
	Hex       string `json:"hex,omitempty"`
	Value     any    `json:"value,omitempty"`
}

// Entity is the externally visible view of a bound binary sensor.
type Entity struct {
	binarysensor.State
	IEEE     string `json:"ieee"`
	Device   string `json:"device,omitempty"`
	Endpoint uint8  `json:"endpoint"`
	Cluster  uint16 `json:"cluster"`
	Channel  string `json:"channel"`
}

// EntityID builds the stable entity identifier
// "<ieee>-<endpoint>-0x<cluster>[-<suffix>]".
func EntityID(ieee string, endpoint uint8, cluster uint16, suffix string) string {
	id := fmt.Sprintf("%s-%d-0x%04x", ieee, endpoint, cluster)
	if suffix != "" {
		id += "-" + suffix
	}
	return id
}

type boundEntity struct {
	sensor  *binarysensor.Sensor
	channel *ClusterChannel
}

// boundDevice is the in-memory binding of one device. dev is never mutated
// in place; it is replaced on rename.
type boundDevice struct {
	dev      *store.Device
	channels map[string]*ClusterChannel // keyed by store.ClusterKey
	entities []*boundEntity
}

// DeviceManager binds discovered devices to cluster channels and sensors.
type DeviceManager struct {
	coord  *Coordinator
	logger *slog.Logger

	// lifecycle serializes discover, remove and restore.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	devices  map[string]*boundDevice
	entities map[string]*boundEntity
}

// NewDeviceManager creates a new device manager.
func NewDeviceManager(coord *Coordinator) *DeviceManager {
	return &DeviceManager{
		coord:    coord,
		logger:   coord.logger.With("component", "device_manager"),
		devices:  make(map[string]*boundDevice),
		entities: make(map[string]*boundEntity),
	}
}

// Discover records a device signature and (re)builds its entities.
// Cached attribute values and the friendly name survive re-announces.
func (dm *DeviceManager) Discover(info DeviceInfo) (*store.Device, error) {
	ieee, err := NormalizeIEEE(info.IEEE)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	dm.lifecycle.Lock()
	defer dm.lifecycle.Unlock()

	// Merge inside one store transaction so attribute values cached by a
	// concurrent report are not overwritten.
	now := time.Now()
	dev, err := dm.coord.Store().UpsertDevice(ieee, func(dev *store.Device) error {
		if dev.JoinedAt.IsZero() {
			dev.JoinedAt = now
		}
		dev.Manufacturer = info.Manufacturer
		dev.Model = info.Model
		dev.QuirkID = info.QuirkID
		dev.Endpoints = info.Endpoints
		dev.LastSeen = now
		if def := dm.coord.DeviceDB().Lookup(dev.Manufacturer, dev.Model); def != nil {
			if dev.QuirkID == "" {
				dev.QuirkID = def.QuirkID
			}
			if dev.FriendlyName == "" {
				dev.FriendlyName = def.FriendlyName
			}
		}
		pruneAttributes(dev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save device %s: %w", ieee, err)
	}

	dm.logger.Info("device discovered", "ieee", ieee, "name", dev.DisplayName(),
		"manufacturer", dev.Manufacturer, "model", dev.Model, "endpoints", len(dev.Endpoints))
	dm.coord.Events().Emit(Event{Type: EventDeviceDiscovered, Data: deviceData(dev)})

	old := dm.unbind(ieee)
	added := dm.bind(dev)
	for _, e := range old {
		if !added[e.ID] {
			dm.coord.Events().Emit(Event{Type: EventEntityRemoved, Data: e})
		}
	}
	return dev, nil
}

// pruneAttributes drops cached values of clusters the device no longer exposes.
func pruneAttributes(dev *store.Device) {
	if len(dev.Attributes) == 0 {
		return
	}
	keep := make(map[string]bool)
	for _, ep := range dev.Endpoints {
		for _, c := range ep.InClusters {
			keep[store.ClusterKey(ep.ID, c)] = true
		}
	}
	for k := range dev.Attributes {
		if !keep[k] {
			delete(dev.Attributes, k)
		}
	}
}

// bind creates channels and sensors for dev, attaches them, announces the
// entities and replays cached attribute values. It returns the bound IDs.
func (dm *DeviceManager) bind(dev *store.Device) map[string]bool {
	clusters := dm.coord.Clusters()
	bd := &boundDevice{dev: dev, channels: make(map[string]*ClusterChannel)}
	ids := make(map[string]bool)

	for _, ep := range dev.Endpoints {
		byName := make(map[string]*ClusterChannel)
		var names []string
		for _, cid := range ep.InClusters {
			key := store.ClusterKey(ep.ID, cid)
			if _, dup := bd.channels[key]; dup {
				continue
			}
			name := clusters.Channel(cid)
			ch := NewClusterChannel(dev.IEEEAddress, ep.ID, cid, name, dev.Attributes[key])
			bd.channels[key] = ch
			if name != "" {
				byName[name] = ch
				names = append(names, name)
			}
		}

		sig := match.Signature{
			Clusters:     names,
			Manufacturer: dev.Manufacturer,
			Model:        dev.Model,
			QuirkID:      dev.QuirkID,
		}
		for _, m := range dm.coord.Rules().Resolve(sig) {
			ch := byName[m.Cluster]
			id := EntityID(dev.IEEEAddress, ep.ID, ch.ClusterID, m.Descriptor.IDSuffix)
			if ids[id] {
				dm.logger.Warn("duplicate entity id, skipping descriptor",
					"ieee", dev.IEEEAddress, "id", id, "descriptor", m.Descriptor.Name)
				continue
			}
			ids[id] = true
			bd.entities = append(bd.entities, &boundEntity{
				sensor:  binarysensor.New(id, m.Descriptor, ch, dm),
				channel: ch,
			})
		}
	}

	dm.mu.Lock()
	dm.devices[dev.IEEEAddress] = bd
	for _, e := range bd.entities {
		dm.entities[e.sensor.ID()] = e
	}
	dm.mu.Unlock()

	for _, e := range bd.entities {
		e.sensor.Attach()
		dm.coord.Events().Emit(Event{Type: EventEntityAdded, Data: entityView(bd.dev, e)})
	}
	dm.logger.Debug("device bound", "ieee", dev.IEEEAddress, "channels", len(bd.channels), "entities", len(bd.entities))

	dm.replay(bd)
	return ids
}

// replay pushes cached values through the channels so sensors leave Unknown.
func (dm *DeviceManager) replay(bd *boundDevice) {
	keys := make([]string, 0, len(bd.channels))
	for k := range bd.channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		ch := bd.channels[k]
		attrs := ch.Attributes()
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			id, _ := dm.coord.Clusters().AttributeID(ch.ClusterID, name)
			ch.Update(id, name, attrs[name])
		}
	}
}

// unbind detaches every sensor of a device and returns views of the removed
// entities. No events are emitted.
func (dm *DeviceManager) unbind(ieee string) []Entity {
	dm.mu.Lock()
	bd, ok := dm.devices[ieee]
	if ok {
		delete(dm.devices, ieee)
		for _, e := range bd.entities {
			delete(dm.entities, e.sensor.ID())
		}
	}
	dm.mu.Unlock()
	if !ok {
		return nil
	}

	out := make([]Entity, 0, len(bd.entities))
	for _, e := range bd.entities {
		e.sensor.Detach()
		out = append(out, entityView(bd.dev, e))
	}
	return out
}

func (dm *DeviceManager) unbindAll() {
	dm.mu.RLock()
	ieees := make([]string, 0, len(dm.devices))
	for ieee := range dm.devices {
		ieees = append(ieees, ieee)
	}
	dm.mu.RUnlock()
	for _, ieee := range ieees {
		dm.unbind(ieee)
	}
}

// Restore rebuilds every persisted device at startup.
func (dm *DeviceManager) Restore() error {
	dm.lifecycle.Lock()
	defer dm.lifecycle.Unlock()

	devices, err := dm.coord.Store().ListDevices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	entities := 0
	for _, dev := range devices {
		dm.unbind(dev.IEEEAddress)
		entities += len(dm.bind(dev))
	}
	dm.logger.Info("devices restored", "devices", len(devices), "entities", entities)
	return nil
}

type pendingUpdate struct {
	ch    *ClusterChannel
	id    uint16
	name  string
	value any
}

// preparedReport is a report resolved against a bound device.
type preparedReport struct {
	ieee  string
	name  string
	value any
	bd    *boundDevice
	ch    *ClusterChannel
}

// prepareReport resolves the device and cluster of a report and decodes its
// value without changing any state.
func (dm *DeviceManager) prepareReport(r Report) (preparedReport, error) {
	ieee, err := NormalizeIEEE(r.IEEE)
	if err != nil {
		return preparedReport{}, fmt.Errorf("report: %w", err)
	}

	dm.mu.RLock()
	bd := dm.devices[ieee]
	var ch *ClusterChannel
	if bd != nil {
		ch = bd.channels[store.ClusterKey(r.Endpoint, r.Cluster)]
	}
	dm.mu.RUnlock()
	if bd == nil {
		return preparedReport{}, fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	if ch == nil {
		return preparedReport{}, fmt.Errorf("%w: 0x%04X on %s endpoint %d", ErrUnknownCluster, r.Cluster, ieee, r.Endpoint)
	}

	value := r.Value
	switch {
	case r.Hex != "":
		value, err = zcl.DecodeHex(r.Type, r.Hex)
		if err != nil {
			return preparedReport{}, fmt.Errorf("report %s 0x%04X/0x%04X: %w", ieee, r.Cluster, r.Attribute, err)
		}
	case value == nil:
		return preparedReport{}, fmt.Errorf("%w: %s 0x%04X/0x%04X", ErrMissingValue, ieee, r.Cluster, r.Attribute)
	}

	name := r.Name
	if name == "" {
		name = dm.coord.Clusters().AttributeName(r.Cluster, r.Attribute)
	}
	return preparedReport{ieee: ieee, name: name, value: value, bd: bd, ch: ch}, nil
}

// ValidateReport reports the error HandleAttributeReport would return for r,
// without applying it.
func (dm *DeviceManager) ValidateReport(r Report) error {
	_, err := dm.prepareReport(r)
	return err
}

// HandleAttributeReport decodes a report, persists it and pushes it to the
// cluster channel. Packed attributes declared in the device file are expanded
// into further named updates.
func (dm *DeviceManager) HandleAttributeReport(r Report) error {
	p, err := dm.prepareReport(r)
	if err != nil {
		return err
	}
	ieee, name, value, bd, ch := p.ieee, p.name, p.value, p.bd, p.ch

	updates := []pendingUpdate{{ch: ch, id: r.Attribute, name: name, value: value}}
	updates = append(updates, dm.expandProperties(bd, r, value)...)

	err = dm.coord.Store().UpdateDevice(ieee, func(d *store.Device) error {
		d.LastSeen = time.Now()
		for _, u := range updates {
			if _, raw := u.value.([]byte); raw {
				continue
			}
			d.SetAttribute(r.Endpoint, u.ch.ClusterID, u.name, u.value)
		}
		return nil
	})
	if err != nil {
		dm.logger.Error("save attribute cache", "err", err, "ieee", ieee)
	}

	dm.logger.Debug("attribute report", "ieee", ieee, "name", bd.dev.DisplayName(),
		"cluster", fmt.Sprintf("0x%04X", r.Cluster), "attr", name, "value", value)

	for _, u := range updates {
		u.ch.Update(u.id, u.name, u.value)
	}

	dm.coord.Events().Emit(Event{Type: EventAttributeReport, Data: ReportData{
		IEEE:      ieee,
		Endpoint:  r.Endpoint,
		Cluster:   r.Cluster,
		Channel:   ch.Name,
		Attribute: r.Attribute,
		Name:      name,
		Value:     value,
	}})
	return nil
}

func (dm *DeviceManager) expandProperties(bd *boundDevice, r Report, value any) []pendingUpdate {
	def := dm.coord.DeviceDB().Lookup(bd.dev.Manufacturer, bd.dev.Model)
	if def == nil {
		return nil
	}
	var out []pendingUpdate
	for _, ps := range def.Properties {
		if ps.Cluster != r.Cluster || ps.Attribute != r.Attribute {
			continue
		}
		values, err := ps.expand(value)
		if err != nil {
			dm.logger.Warn("property decode failed", "ieee", bd.dev.IEEEAddress,
				"decoder", ps.Decoder, "err", err)
			continue
		}
		for _, pv := range values {
			dm.mu.RLock()
			target := bd.channels[store.ClusterKey(r.Endpoint, pv.Cluster)]
			dm.mu.RUnlock()
			if target == nil {
				dm.logger.Debug("property target cluster not exposed", "ieee", bd.dev.IEEEAddress,
					"cluster", fmt.Sprintf("0x%04X", pv.Cluster), "property", pv.Name)
				continue
			}
			out = append(out, pendingUpdate{ch: target, id: r.Attribute, name: pv.Name, value: pv.Value})
		}
	}
	return out
}

// RemoveDevice detaches the device's sensors and deletes it from the store.
func (dm *DeviceManager) RemoveDevice(ieee string) error {
	ieee, err := NormalizeIEEE(ieee)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}

	dm.lifecycle.Lock()
	defer dm.lifecycle.Unlock()

	removed := dm.unbind(ieee)
	dev, err := dm.coord.Store().GetDevice(ieee)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("get device %s: %w", ieee, err)
		}
		if removed == nil {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
		}
		dev = &store.Device{IEEEAddress: ieee}
	}
	if err := dm.coord.Store().DeleteDevice(ieee); err != nil {
		return fmt.Errorf("delete device %s: %w", ieee, err)
	}

	for _, e := range removed {
		dm.coord.Events().Emit(Event{Type: EventEntityRemoved, Data: e})
	}
	dm.logger.Info("device removed", "ieee", ieee, "name", dev.DisplayName(), "entities", len(removed))
	dm.coord.Events().Emit(Event{Type: EventDeviceRemoved, Data: deviceData(dev)})
	return nil
}

// Rename sets the friendly name of a device.
func (dm *DeviceManager) Rename(ieee, name string) (*store.Device, error) {
	ieee, err := NormalizeIEEE(ieee)
	if err != nil {
		return nil, fmt.Errorf("rename device: %w", err)
	}

	var updated *store.Device
	err = dm.coord.Store().UpdateDevice(ieee, func(d *store.Device) error {
		d.FriendlyName = name
		updated = d
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	if err != nil {
		return nil, fmt.Errorf("rename device %s: %w", ieee, err)
	}

	dm.mu.Lock()
	if bd := dm.devices[ieee]; bd != nil {
		cp := *bd.dev
		cp.FriendlyName = name
		bd.dev = &cp
	}
	dm.mu.Unlock()

	dm.logger.Info("device renamed", "ieee", ieee, "name", name)
	dm.coord.Events().Emit(Event{Type: EventDeviceUpdated, Data: deviceData(updated)})
	return updated, nil
}

// NotifyStateChanged publishes the current state of an entity.
func (dm *DeviceManager) NotifyStateChanged(entityID string) {
	e, ok := dm.Entity(entityID)
	if !ok {
		return
	}
	dm.coord.Events().Emit(Event{Type: EventStateChanged, Data: e})
}

// ListDevices returns all known devices.
func (dm *DeviceManager) ListDevices() ([]*store.Device, error) {
	return dm.coord.Store().ListDevices()
}

// GetDevice returns a device by IEEE address.
func (dm *DeviceManager) GetDevice(ieee string) (*store.Device, error) {
	norm, err := NormalizeIEEE(ieee)
	if err != nil {
		return nil, err
	}
	return dm.coord.Store().GetDevice(norm)
}

// Entities returns all bound entities sorted by ID.
func (dm *DeviceManager) Entities() []Entity {
	dm.mu.RLock()
	out := make([]Entity, 0, len(dm.entities))
	for _, bd := range dm.devices {
		for _, e := range bd.entities {
			out = append(out, entityView(bd.dev, e))
		}
	}
	dm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeviceEntities returns the entities of one device in resolution order.
func (dm *DeviceManager) DeviceEntities(ieee string) []Entity {
	norm, err := NormalizeIEEE(ieee)
	if err != nil {
		return nil
	}
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	bd := dm.devices[norm]
	if bd == nil {
		return nil
	}
	out := make([]Entity, 0, len(bd.entities))
	for _, e := range bd.entities {
		out = append(out, entityView(bd.dev, e))
	}
	return out
}

// Entity returns one entity by ID.
func (dm *DeviceManager) Entity(id string) (Entity, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	e, ok := dm.entities[id]
	if !ok {
		return Entity{}, false
	}
	return entityView(dm.devices[e.channel.IEEE].dev, e), true
}

func entityView(dev *store.Device, e *boundEntity) Entity {
	return Entity{
		State:    e.sensor.Snapshot(),
		IEEE:     e.channel.IEEE,
		Device:   dev.DisplayName(),
		Endpoint: e.channel.Endpoint,
		Cluster:  e.channel.ClusterID,
		Channel:  e.channel.Name,
	}
}

func deviceData(dev *store.Device) DeviceData {
	return DeviceData{
		IEEE:         dev.IEEEAddress,
		Name:         dev.DisplayName(),
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
	}
}
