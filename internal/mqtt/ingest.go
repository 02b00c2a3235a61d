//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-binary-sensor/internal/coordinator"
	"zigbee-binary-sensor/internal/store"
)

// DeviceSink receives device traffic decoded from MQTT.
type DeviceSink interface {
	Discover(info coordinator.DeviceInfo) (*store.Device, error)
	HandleAttributeReport(r coordinator.Report) error
	RemoveDevice(ieee string) error
}

// Ingest feeds raw traffic published by an external Zigbee coordinator into
// the device manager. Topics are <prefix>/raw/<ieee>/{announce,report,leave}.
type Ingest struct {
	sink   DeviceSink
	prefix string
	logger *slog.Logger
}

// NewIngest creates an ingest handler for the given topic prefix.
func NewIngest(sink DeviceSink, prefix string, logger *slog.Logger) *Ingest {
	return &Ingest{
		sink:   sink,
		prefix: prefix,
		logger: logger.With("component", "mqtt_ingest"),
	}
}

func (in *Ingest) subscribe(c pahomqtt.Client) {
	filter := in.prefix + "/raw/+/+"
	token := c.Subscribe(filter, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if err := in.handle(msg.Topic(), msg.Payload()); err != nil {
			in.logger.Warn("raw message rejected", "topic", msg.Topic(), "err", err)
		}
	})
	if token.Wait() && token.Error() != nil {
		in.logger.Error("subscribe raw topics", "topic", filter, "err", token.Error())
		return
	}
	in.logger.Info("subscribed to raw device traffic", "topic", filter)
}

// handle dispatches one raw message by its topic suffix.
func (in *Ingest) handle(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, in.prefix+"/raw/")
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}
	ieee, kind, ok := strings.Cut(rest, "/")
	if !ok || ieee == "" {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	switch kind {
	case "announce":
		var info coordinator.DeviceInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return fmt.Errorf("decode announce: %w", err)
		}
		if info.IEEE == "" {
			info.IEEE = ieee
		}
		_, err := in.sink.Discover(info)
		return err
	case "report":
		reports, err := decodeReports(payload)
		if err != nil {
			return err
		}
		for _, r := range reports {
			if r.IEEE == "" {
				r.IEEE = ieee
			}
			if err := in.sink.HandleAttributeReport(r); err != nil {
				return err
			}
		}
		return nil
	case "leave":
		return in.sink.RemoveDevice(ieee)
	default:
		return fmt.Errorf("unknown message kind %q", kind)
	}
}

// decodeReports accepts a single report object or an array of reports.
func decodeReports(payload []byte) ([]coordinator.Report, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var reports []coordinator.Report
		if err := json.Unmarshal(payload, &reports); err != nil {
			return nil, fmt.Errorf("decode reports: %w", err)
		}
		return reports, nil
	}
	var r coordinator.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return []coordinator.Report{r}, nil
}
