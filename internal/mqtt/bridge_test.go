//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-binary-sensor/internal/binarysensor"
	"zigbee-binary-sensor/internal/coordinator"
	"zigbee-binary-sensor/internal/entity"
	"zigbee-binary-sensor/internal/match"
	"zigbee-binary-sensor/internal/store"
	"zigbee-binary-sensor/internal/zcl"
	"zigbee-binary-sensor/internal/zcl/clusters"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.msgs = append(f.msgs, published{topic: topic, retained: retained, payload: b})
	return doneToken{}
}

// last returns the most recent message on a topic.
func (f *fakePublisher) last(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].topic == topic {
			return f.msgs[i], true
		}
	}
	return published{}, false
}

func (f *fakePublisher) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.topic == topic {
			n++
		}
	}
	return n
}

func newTestBridge(t *testing.T) (*Bridge, *coordinator.Coordinator, *fakePublisher) {
	t.Helper()
	logger := newTestLogger()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	zr := zcl.NewRegistry(logger)
	for _, c := range clusters.Standard() {
		zr.Register(c)
	}
	rules := match.NewRegistry(logger)
	binarysensor.RegisterStandard(rules)

	coord := coordinator.New(st, zr, rules, nil, coordinator.NewEventBus(logger), logger)
	pub := &fakePublisher{}
	b := newBridge(coord, Config{TopicPrefix: "zigbee"}, pub, logger)
	b.Start()
	t.Cleanup(func() { b.unsub() })
	return b, coord, pub
}

const (
	occupancyIEEE = "00158D0001A2B3C4"
	zoneIEEE      = "000D6F0011223344"
)

func decodeState(t *testing.T, p published) map[string]any {
	t.Helper()
	var state map[string]any
	if err := json.Unmarshal(p.payload, &state); err != nil {
		t.Fatalf("state payload %q: %v", p.payload, err)
	}
	return state
}

func TestBuildDiscovery(t *testing.T) {
	dev := &store.Device{
		IEEEAddress:  occupancyIEEE,
		Manufacturer: "LUMI",
		Model:        "lumi.sensor_motion",
		FriendlyName: "Hall Motion",
	}
	e := coordinator.Entity{
		State: binarysensor.State{
			ID:          coordinator.EntityID(occupancyIEEE, 1, 0x0406, ""),
			Name:        "Occupancy",
			DeviceClass: entity.DeviceClassOccupancy,
		},
		IEEE: occupancyIEEE,
	}

	msg := buildDiscovery(dev, e, "zigbee", "homeassistant")
	if msg.Topic != "homeassistant/binary_sensor/zigbee_00158D0001A2B3C4/1_0x0406/config" {
		t.Errorf("topic = %q", msg.Topic)
	}

	var payload haDiscovery
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Name != "Hall Motion Occupancy" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.UniqueID != "zigbee_00158D0001A2B3C4_1_0x0406" {
		t.Errorf("unique_id = %q", payload.UniqueID)
	}
	if payload.StateTopic != "zigbee/hall_motion" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.AvailabilityTopic != "zigbee/bridge/state" {
		t.Errorf("availability_topic = %q", payload.AvailabilityTopic)
	}
	if payload.ValueTemplate != "{{ value_json['1_0x0406'] }}" {
		t.Errorf("value_template = %q", payload.ValueTemplate)
	}
	if payload.DeviceClass != "occupancy" {
		t.Errorf("device_class = %q", payload.DeviceClass)
	}
	if payload.EntityCategory != "" {
		t.Errorf("entity_category = %q, want empty", payload.EntityCategory)
	}
	if payload.PayloadOn != "ON" || payload.PayloadOff != "OFF" {
		t.Errorf("payloads = %q/%q", payload.PayloadOn, payload.PayloadOff)
	}
	if payload.Device.Manufacturer != "LUMI" || payload.Device.Identifiers[0] != "zigbee_00158D0001A2B3C4" {
		t.Errorf("device = %+v", payload.Device)
	}
}

func TestBuildDiscoveryDiagnostic(t *testing.T) {
	dev := &store.Device{IEEEAddress: occupancyIEEE}
	e := coordinator.Entity{
		State: binarysensor.State{
			ID:          coordinator.EntityID(occupancyIEEE, 1, 0xFCC0, "calibrated"),
			Name:        "AqaraThermostatCalibrated",
			DisplayName: "Calibrated",
			Category:    entity.CategoryDiagnostic,
		},
		IEEE: occupancyIEEE,
	}

	msg := buildDiscovery(dev, e, "zigbee", "ha")
	if !strings.HasPrefix(msg.Topic, "ha/binary_sensor/") || !strings.HasSuffix(msg.Topic, "/1_0xfcc0_calibrated/config") {
		t.Errorf("topic = %q", msg.Topic)
	}
	var payload haDiscovery
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.EntityCategory != "diagnostic" {
		t.Errorf("entity_category = %q", payload.EntityCategory)
	}
	if payload.Name != occupancyIEEE+" Calibrated" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.DeviceClass != "" {
		t.Errorf("device_class = %q, want empty", payload.DeviceClass)
	}
}

func TestBuildState(t *testing.T) {
	dev := &store.Device{IEEEAddress: occupancyIEEE, LastSeen: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	entities := []coordinator.Entity{
		{IEEE: occupancyIEEE, State: binarysensor.State{ID: occupancyIEEE + "-1-0x0406", Known: true, On: true}},
		{IEEE: occupancyIEEE, State: binarysensor.State{ID: occupancyIEEE + "-1-0x0006", Known: true}},
		{IEEE: occupancyIEEE, State: binarysensor.State{ID: occupancyIEEE + "-2-0x0500"}},
	}

	state := buildState(dev, entities)
	if state["1_0x0406"] != "ON" {
		t.Errorf("1_0x0406 = %v", state["1_0x0406"])
	}
	if state["1_0x0006"] != "OFF" {
		t.Errorf("1_0x0006 = %v", state["1_0x0006"])
	}
	if v, ok := state["2_0x0500"]; !ok || v != nil {
		t.Errorf("2_0x0500 = %v (present %v), want null", v, ok)
	}
	if state["last_seen"] != "2026-01-02T03:04:05Z" {
		t.Errorf("last_seen = %v", state["last_seen"])
	}
}

func TestRemoveDiscovery(t *testing.T) {
	e := coordinator.Entity{IEEE: zoneIEEE, State: binarysensor.State{ID: zoneIEEE + "-1-0x0500"}}
	msg := buildRemoveDiscovery(e, "homeassistant")
	if msg.Payload != nil {
		t.Errorf("removal message should have nil payload, got %q", msg.Payload)
	}
	if msg.Topic != "homeassistant/binary_sensor/zigbee_000D6F0011223344/1_0x0500/config" {
		t.Errorf("topic = %q", msg.Topic)
	}
}

func TestDeviceTopicName(t *testing.T) {
	tests := []struct {
		name string
		dev  *store.Device
		want string
	}{
		{
			name: "friendly name with spaces",
			dev:  &store.Device{FriendlyName: "Kitchen Door", IEEEAddress: "AABB"},
			want: "kitchen_door",
		},
		{
			name: "friendly name with slash",
			dev:  &store.Device{FriendlyName: "Garage/Side-Door", IEEEAddress: "AABB"},
			want: "garage_side_door",
		},
		{
			name: "IEEE fallback",
			dev:  &store.Device{IEEEAddress: "00158D00012A3B4C"},
			want: "00158D00012A3B4C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deviceTopicName(tt.dev); got != tt.want {
				t.Errorf("deviceTopicName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBridgePublishesEntityLifecycle(t *testing.T) {
	_, coord, pub := newTestBridge(t)
	dm := coord.Devices()

	_, err := dm.Discover(coordinator.DeviceInfo{
		IEEE:         occupancyIEEE,
		Manufacturer: "Acme",
		Model:        "PIR-1",
		Endpoints:    []store.Endpoint{{ID: 1, InClusters: []uint16{0x0000, 0x0406}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	configTopic := "homeassistant/binary_sensor/zigbee_00158D0001A2B3C4/1_0x0406/config"
	cfg, ok := pub.last(configTopic)
	if !ok {
		t.Fatal("discovery not published")
	}
	if !cfg.retained {
		t.Error("discovery should be retained")
	}

	stateTopic := "zigbee/" + occupancyIEEE
	st, ok := pub.last(stateTopic)
	if !ok {
		t.Fatal("state not published")
	}
	if v, present := decodeState(t, st)["1_0x0406"]; !present || v != nil {
		t.Errorf("initial state = %v, want null", v)
	}

	err = dm.HandleAttributeReport(coordinator.Report{
		IEEE: occupancyIEEE, Endpoint: 1, Cluster: 0x0406, Attribute: 0x0000, Value: uint8(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	st, _ = pub.last(stateTopic)
	if got := decodeState(t, st)["1_0x0406"]; got != "ON" {
		t.Errorf("state after report = %v, want ON", got)
	}

	if err := dm.RemoveDevice(occupancyIEEE); err != nil {
		t.Fatal(err)
	}
	cfg, _ = pub.last(configTopic)
	if len(cfg.payload) != 0 {
		t.Errorf("discovery after removal = %q, want empty", cfg.payload)
	}
	st, _ = pub.last(stateTopic)
	if len(st.payload) != 0 {
		t.Errorf("state after removal = %q, want empty", st.payload)
	}
}

func TestBridgeRepublishesOnZoneClassChange(t *testing.T) {
	_, coord, pub := newTestBridge(t)
	dm := coord.Devices()

	_, err := dm.Discover(coordinator.DeviceInfo{
		IEEE:         zoneIEEE,
		Manufacturer: "HEIMAN",
		Model:        "SmokeSensor-N",
		Endpoints:    []store.Endpoint{{ID: 1, InClusters: []uint16{0x0500}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	configTopic := "homeassistant/binary_sensor/zigbee_000D6F0011223344/1_0x0500/config"
	if n := pub.count(configTopic); n != 1 {
		t.Fatalf("discovery published %d times, want 1", n)
	}

	// zone_type alone does not change the sensor state.
	if err := dm.HandleAttributeReport(coordinator.Report{
		IEEE: zoneIEEE, Endpoint: 1, Cluster: 0x0500, Attribute: 0x0001, Value: uint16(0x0028),
	}); err != nil {
		t.Fatal(err)
	}
	if n := pub.count(configTopic); n != 1 {
		t.Fatalf("discovery published %d times after zone_type, want 1", n)
	}

	if err := dm.HandleAttributeReport(coordinator.Report{
		IEEE: zoneIEEE, Endpoint: 1, Cluster: 0x0500, Attribute: 0x0002, Type: zcl.TypeBitmap16, Hex: "0100",
	}); err != nil {
		t.Fatal(err)
	}
	if n := pub.count(configTopic); n != 2 {
		t.Fatalf("discovery published %d times after class change, want 2", n)
	}
	cfg, _ := pub.last(configTopic)
	var payload haDiscovery
	if err := json.Unmarshal(cfg.payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.DeviceClass != "smoke" {
		t.Errorf("device_class = %q, want smoke", payload.DeviceClass)
	}

	// Same class again: state only.
	if err := dm.HandleAttributeReport(coordinator.Report{
		IEEE: zoneIEEE, Endpoint: 1, Cluster: 0x0500, Attribute: 0x0002, Type: zcl.TypeBitmap16, Hex: "0000",
	}); err != nil {
		t.Fatal(err)
	}
	if n := pub.count(configTopic); n != 2 {
		t.Errorf("discovery published %d times, want 2", n)
	}
	st, _ := pub.last("zigbee/" + zoneIEEE)
	if got := decodeState(t, st)["1_0x0500"]; got != "OFF" {
		t.Errorf("state = %v, want OFF", got)
	}
}

func TestBridgeRenameMovesStateTopic(t *testing.T) {
	_, coord, pub := newTestBridge(t)
	dm := coord.Devices()

	if _, err := dm.Discover(coordinator.DeviceInfo{
		IEEE:         occupancyIEEE,
		Manufacturer: "Acme",
		Endpoints:    []store.Endpoint{{ID: 1, InClusters: []uint16{0x0406}}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := dm.Rename(occupancyIEEE, "Hall PIR"); err != nil {
		t.Fatal(err)
	}

	old, _ := pub.last("zigbee/" + occupancyIEEE)
	if len(old.payload) != 0 {
		t.Errorf("old state topic = %q, want cleared", old.payload)
	}
	if _, ok := pub.last("zigbee/hall_pir"); !ok {
		t.Error("state not published on renamed topic")
	}
	cfg, _ := pub.last("homeassistant/binary_sensor/zigbee_00158D0001A2B3C4/1_0x0406/config")
	var payload haDiscovery
	if err := json.Unmarshal(cfg.payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.StateTopic != "zigbee/hall_pir" || payload.Name != "Hall PIR Occupancy" {
		t.Errorf("discovery after rename = %+v", payload)
	}
}

func TestBridgePublishAll(t *testing.T) {
	b, coord, pub := newTestBridge(t)
	b.unsub()
	b.unsub = func() {}

	if _, err := coord.Devices().Discover(coordinator.DeviceInfo{
		IEEE:         occupancyIEEE,
		Manufacturer: "Acme",
		Endpoints:    []store.Endpoint{{ID: 1, InClusters: []uint16{0x0406, 0x000F}}},
	}); err != nil {
		t.Fatal(err)
	}
	if len(pub.msgs) != 0 {
		t.Fatalf("published %d messages while unsubscribed", len(pub.msgs))
	}

	b.publishBridgeState("online")
	b.publishAll()

	if m, _ := pub.last("zigbee/bridge/state"); string(m.payload) != "online" {
		t.Errorf("bridge state = %q", m.payload)
	}
	for _, obj := range []string{"1_0x0406", "1_0x000f"} {
		if _, ok := pub.last("homeassistant/binary_sensor/zigbee_00158D0001A2B3C4/" + obj + "/config"); !ok {
			t.Errorf("discovery for %s not published", obj)
		}
	}
	if _, ok := pub.last("zigbee/" + occupancyIEEE); !ok {
		t.Error("state not published")
	}
}
