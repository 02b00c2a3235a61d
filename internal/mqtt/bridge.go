//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"zigbee-binary-sensor/internal/coordinator"
	"zigbee-binary-sensor/internal/entity"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
	// Ingest subscribes to raw device traffic under <TopicPrefix>/raw.
	Ingest bool
}

// publisher is the part of the paho client the bridge publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Bridge mirrors binary sensor entities to MQTT with HA autodiscovery.
type Bridge struct {
	client          pahomqtt.Client
	pub             publisher
	coord           *coordinator.Coordinator
	ingest          *Ingest
	prefix          string
	discoveryPrefix string
	logger          *slog.Logger
	unsub           func()

	mu sync.Mutex
	// classes is the device class last announced per entity ID.
	classes map[string]entity.DeviceClass
	// topics is the state topic last used per IEEE.
	topics map[string]string
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(coord, cfg, nil, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "zigbee-binary-sensor-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.availabilityTopic(), "offline", 1, true).
		SetOnConnectHandler(func(c pahomqtt.Client) {
			b.logger.Info("MQTT connected", "client_id", clientID)
			b.publishBridgeState("online")
			b.publishAll()
			if b.ingest != nil {
				b.ingest.subscribe(c)
			}
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	b.pub = client
	if cfg.Ingest {
		b.ingest = NewIngest(coord.Devices(), cfg.TopicPrefix, logger)
	}

	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(coord *coordinator.Coordinator, cfg Config, pub publisher, logger *slog.Logger) *Bridge {
	discoveryPrefix := cfg.DiscoveryPrefix
	if discoveryPrefix == "" {
		discoveryPrefix = "homeassistant"
	}
	return &Bridge{
		pub:             pub,
		coord:           coord,
		prefix:          cfg.TopicPrefix,
		discoveryPrefix: discoveryPrefix,
		logger:          logger.With("component", "mqtt"),
		classes:         make(map[string]entity.DeviceClass),
		topics:          make(map[string]string),
	}
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.coord.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix, "discovery_prefix", b.discoveryPrefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	if b.client != nil {
		b.client.Disconnect(1000)
	}
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	switch event.Type {
	case coordinator.EventEntityAdded:
		if e, ok := event.Data.(coordinator.Entity); ok {
			b.publishDiscovery(e)
			b.publishState(e.IEEE)
		}
	case coordinator.EventEntityRemoved:
		if e, ok := event.Data.(coordinator.Entity); ok {
			b.removeDiscovery(e)
		}
	case coordinator.EventStateChanged:
		if e, ok := event.Data.(coordinator.Entity); ok {
			b.mu.Lock()
			changed := b.classes[e.ID] != e.DeviceClass
			b.mu.Unlock()
			if changed {
				b.publishDiscovery(e)
			}
			b.publishState(e.IEEE)
		}
	case coordinator.EventDeviceUpdated:
		if d, ok := event.Data.(coordinator.DeviceData); ok {
			for _, e := range b.coord.Devices().DeviceEntities(d.IEEE) {
				b.publishDiscovery(e)
			}
			b.publishState(d.IEEE)
		}
	case coordinator.EventDeviceRemoved:
		if d, ok := event.Data.(coordinator.DeviceData); ok {
			b.clearState(d.IEEE)
		}
	}
}

func (b *Bridge) publishDiscovery(e coordinator.Entity) {
	dev, err := b.coord.Devices().GetDevice(e.IEEE)
	if err != nil {
		b.logger.Warn("discovery for unknown device", "ieee", e.IEEE, "err", err)
		return
	}
	msg := buildDiscovery(dev, e, b.prefix, b.discoveryPrefix)
	b.publish(msg.Topic, msg.Payload, true)

	b.mu.Lock()
	b.classes[e.ID] = e.DeviceClass
	b.mu.Unlock()
	b.logger.Debug("published HA discovery", "entity", e.ID, "device_class", e.DeviceClass)
}

func (b *Bridge) removeDiscovery(e coordinator.Entity) {
	msg := buildRemoveDiscovery(e, b.discoveryPrefix)
	b.publish(msg.Topic, msg.Payload, true)

	b.mu.Lock()
	delete(b.classes, e.ID)
	b.mu.Unlock()
}

func (b *Bridge) publishState(ieee string) {
	dev, err := b.coord.Devices().GetDevice(ieee)
	if err != nil {
		return
	}
	topic := b.prefix + "/" + deviceTopicName(dev)
	payload := mustJSON(buildState(dev, b.coord.Devices().DeviceEntities(ieee)))

	b.mu.Lock()
	old := b.topics[dev.IEEEAddress]
	b.topics[dev.IEEEAddress] = topic
	b.mu.Unlock()

	if old != "" && old != topic {
		b.publish(old, nil, true)
	}
	b.publish(topic, payload, true)
}

func (b *Bridge) clearState(ieee string) {
	b.mu.Lock()
	topic, ok := b.topics[ieee]
	delete(b.topics, ieee)
	b.mu.Unlock()
	if ok {
		b.publish(topic, nil, true)
	}
}

func (b *Bridge) availabilityTopic() string {
	return b.prefix + "/bridge/state"
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.availabilityTopic(), []byte(state), true)
}

// publishAll announces every bound entity, e.g. after a (re)connect.
func (b *Bridge) publishAll() {
	devices := make(map[string]bool)
	for _, e := range b.coord.Devices().Entities() {
		b.publishDiscovery(e)
		devices[e.IEEE] = true
	}
	for ieee := range devices {
		b.publishState(ieee)
	}
	b.logger.Info("published HA discovery", "devices", len(devices))
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if b.pub == nil {
		return
	}
	token := b.pub.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}
