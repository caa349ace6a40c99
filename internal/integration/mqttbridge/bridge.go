// Package mqttbridge is the one concrete integration adapter: it
// carries device state over MQTT, standing in for the vendor-specific
// drivers (dummy/circadian/Neato/Zigbee) spec.md places out of scope.
//
// Inbound device reports arrive on "hearth/state/<integration>/<device>"
// and outbound commands are published to
// "hearth/command/<integration>/<device>", patterned on the teacher's
// graylogic/{command,state}/{protocol}/{device_id} topic convention.
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/homehub/hearth-core/internal/core/color"
	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/platform/config"
)

const (
	topicStateWildcard   = "hearth/state/+/+"
	topicCommandTemplate = "hearth/command/%s/%s"

	defaultConnectTimeout = 10 * time.Second
)

// Logger is the minimal logging dependency, satisfied by
// *internal/platform/logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// wirePayload is the JSON shape exchanged with integrations over MQTT.
type wirePayload struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"` // "managed" or "sensor"
	Power       bool    `json:"power,omitempty"`
	Brightness  float64 `json:"brightness,omitempty"`
	ColorMode   string  `json:"color_mode,omitempty"`
	Hue         float64 `json:"hue,omitempty"`
	Saturation  float64 `json:"saturation,omitempty"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	Mireds      float64 `json:"mireds,omitempty"`
	SensorValue any     `json:"sensor_value,omitempty"`
}

// OnStateUpdate is invoked for every inbound device report, after
// parsing. The bridge never talks to the event bus directly; the
// caller (cmd/hearthd) wires this callback to enqueue
// eventbus.ExternalStateUpdate, keeping this package free of a
// dependency on eventbus.
type OnStateUpdate func(devices.Device)

// Bridge is the MQTT-transport integration.Capability implementation.
type Bridge struct {
	id      string
	cfg     config.MQTTConfig
	log     Logger
	onState OnStateUpdate

	mu     sync.RWMutex
	client pahomqtt.Client
}

// New constructs a Bridge. id is the integration id every device
// reported through this bridge will carry as DeviceKey.IntegrationID.
func New(id string, cfg config.MQTTConfig, onState OnStateUpdate, log Logger) *Bridge {
	if log == nil {
		log = noopLogger{}
	}
	return &Bridge{id: id, cfg: cfg, onState: onState, log: log}
}

// ID implements integration.Capability.
func (b *Bridge) ID() string { return b.id }

// Register implements integration.Capability. The MQTT transport has no
// separate discovery phase distinct from Start's subscription; the
// initial device set arrives as ordinary state messages once connected,
// so Register returns no devices of its own.
func (b *Bridge) Register(ctx context.Context) ([]devices.Device, error) {
	return nil, nil
}

// Start implements integration.Capability: connects to the broker and
// subscribes to the inbound state wildcard.
func (b *Bridge) Start(ctx context.Context) error {
	opts := buildClientOptions(b.cfg)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		token := c.Subscribe(topicStateWildcard, byte(b.cfg.QoS), b.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			b.log.Error("mqttbridge: subscribe failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.log.Warn("mqttbridge: connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("mqttbridge: connect timeout after %v", defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttbridge: connect: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	return nil
}

func (b *Bridge) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) != 4 {
		b.log.Warn("mqttbridge: malformed topic", "topic", msg.Topic())
		return
	}
	integrationID, deviceID := parts[2], parts[3]

	var wire wirePayload
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		b.log.Warn("mqttbridge: invalid state payload", "topic", msg.Topic(), "error", err)
		return
	}

	d := devices.Device{
		Key:  devices.Key{IntegrationID: integrationID, DeviceID: deviceID},
		Name: wire.Name,
	}
	if wire.Kind == "sensor" {
		d.Data = devices.Data{Kind: devices.KindSensor, SensorValue: wire.SensorValue}
	} else {
		col := wireColor(wire)
		d.Data = devices.Data{Kind: devices.KindManaged, Light: devices.Light{
			Power:      wire.Power,
			Brightness: wire.Brightness,
			Color:      col,
			Capability: devices.Capability{
				Dimmable:           true,
				ColorCapable:       wire.ColorMode != "",
				PreferredColorMode: col.Mode,
			},
		}}
	}

	if b.onState != nil {
		b.onState(d)
	}
}

func wireColor(w wirePayload) color.Color {
	switch w.ColorMode {
	case "xy":
		return color.Color{Mode: color.ModeXy, X: w.X, Y: w.Y}
	case "ct":
		return color.Color{Mode: color.ModeCt, Mireds: w.Mireds}
	default:
		return color.Color{Mode: color.ModeHs, Hue: w.Hue, Saturation: w.Saturation}
	}
}

// SetDeviceState implements integration.Capability: publishes the
// device state — already in the device's preferred color mode, the
// dispatcher converts before dispatching here — as a command.
func (b *Bridge) SetDeviceState(ctx context.Context, d devices.Device) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("mqttbridge: not connected")
	}

	wire := wirePayload{Name: d.Name}
	if d.Data.Kind == devices.KindSensor {
		wire.Kind = "sensor"
		wire.SensorValue = d.Data.SensorValue
	} else {
		wire.Kind = "managed"
		wire.Power = d.Data.Light.Power
		wire.Brightness = d.Data.Light.Brightness
		wire.ColorMode = string(d.Data.Light.Color.Mode)
		wire.Hue = d.Data.Light.Color.Hue
		wire.Saturation = d.Data.Light.Color.Saturation
		wire.X = d.Data.Light.Color.X
		wire.Y = d.Data.Light.Color.Y
		wire.Mireds = d.Data.Light.Color.Mireds
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("mqttbridge: marshal command: %w", err)
	}

	topic := fmt.Sprintf(topicCommandTemplate, d.Key.IntegrationID, d.Key.DeviceID)
	token := client.Publish(topic, byte(b.cfg.QoS), false, payload)
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("mqttbridge: publish timeout")
	}
	return token.Error()
}

// RunAction implements integration.Capability: publishes the opaque
// payload to a per-integration custom-action topic. The integration is
// free to interpret it (spec.md §6).
func (b *Bridge) RunAction(ctx context.Context, payload any) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("mqttbridge: not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqttbridge: marshal action payload: %w", err)
	}
	token := client.Publish(fmt.Sprintf("hearth/action/%s", b.id), byte(b.cfg.QoS), false, data)
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("mqttbridge: publish timeout")
	}
	return token.Error()
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetConnectRetry(true)
	opts.SetOrderMatters(false)
	return opts
}
