package coordinator

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"zigbee-binary-sensor/internal/match"
	"zigbee-binary-sensor/internal/store"
	"zigbee-binary-sensor/internal/zcl"
)

var (
	// ErrUnknownDevice is returned for operations on a device that was never discovered.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrUnknownCluster is returned for reports on a cluster the endpoint does not expose.
	ErrUnknownCluster = errors.New("unknown cluster")
	// ErrMissingValue is returned for reports carrying neither a value nor hex data.
	ErrMissingValue = errors.New("report has no value")
)

// ParseIEEE parses "DD:DD:DD:DD:DD:DD:DD:DD" or "DDDDDDDDDDDDDDDD" into [8]byte.
// A leading "0x" is accepted.
func ParseIEEE(s string) ([8]byte, error) {
	var result [8]byte
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.ReplaceAll(s, ":", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("parse ieee address: %w", err)
	}
	if len(b) != 8 {
		return result, fmt.Errorf("ieee address must be 8 bytes, got %d", len(b))
	}
	copy(result[:], b)
	return result, nil
}

// NormalizeIEEE returns the canonical upper-case hex form used as store key.
func NormalizeIEEE(s string) (string, error) {
	b, err := ParseIEEE(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016X", b), nil
}

// Coordinator owns the device manager and the registries it resolves against.
type Coordinator struct {
	store    store.Store
	clusters *zcl.Registry
	rules    *match.Registry
	deviceDB *DeviceDB
	events   *EventBus
	devices  *DeviceManager
	logger   *slog.Logger
}

// New creates a coordinator. deviceDB may be nil.
func New(st store.Store, clusters *zcl.Registry, rules *match.Registry, deviceDB *DeviceDB, events *EventBus, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		store:    st,
		clusters: clusters,
		rules:    rules,
		deviceDB: deviceDB,
		events:   events,
		logger:   logger,
	}
	c.devices = NewDeviceManager(c)
	return c
}

// Start rebuilds every persisted device and its entities.
func (c *Coordinator) Start() error {
	if err := c.devices.Restore(); err != nil {
		return fmt.Errorf("restore devices: %w", err)
	}
	return nil
}

// Stop detaches every sensor.
func (c *Coordinator) Stop() {
	c.devices.unbindAll()
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Clusters returns the ZCL registry.
func (c *Coordinator) Clusters() *zcl.Registry {
	return c.clusters
}

// Rules returns the binary sensor rule registry.
func (c *Coordinator) Rules() *match.Registry {
	return c.rules
}

// DeviceDB returns the device definitions database.
func (c *Coordinator) DeviceDB() *DeviceDB {
	return c.deviceDB
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Devices returns the device manager.
func (c *Coordinator) Devices() *DeviceManager {
	return c.devices
}
