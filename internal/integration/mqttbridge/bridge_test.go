package mqttbridge

import (
	"encoding/json"
	"testing"

	"github.com/homehub/hearth-core/internal/core/color"
	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/platform/config"
)

// fakeMessage implements pahomqtt.Message for handleMessage tests without
// a broker connection.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMessage) Duplicate() bool   { return false }
func (f *fakeMessage) Qos() byte         { return 0 }
func (f *fakeMessage) Retained() bool    { return false }
func (f *fakeMessage) Topic() string     { return f.topic }
func (f *fakeMessage) MessageID() uint16 { return 0 }
func (f *fakeMessage) Payload() []byte   { return f.payload }
func (f *fakeMessage) Ack()              {}

func TestHandleMessage_ParsesManagedDeviceReport(t *testing.T) {
	var got devices.Device
	b := New("mqtt", config.MQTTConfig{}, func(d devices.Device) { got = d }, nil)

	payload, _ := json.Marshal(wirePayload{
		Name: "Living Room Lamp", Kind: "managed",
		Power: true, Brightness: 0.6, ColorMode: "hs", Hue: 210, Saturation: 0.8,
	})
	b.handleMessage(nil, &fakeMessage{topic: "hearth/state/mqtt/lamp1", payload: payload})

	if got.Key.IntegrationID != "mqtt" || got.Key.DeviceID != "lamp1" {
		t.Fatalf("unexpected key: %+v", got.Key)
	}
	if !got.Data.Light.Power || got.Data.Light.Brightness != 0.6 {
		t.Fatalf("unexpected light state: %+v", got.Data.Light)
	}
	if got.Data.Light.Color.Mode != color.ModeHs || got.Data.Light.Color.Hue != 210 {
		t.Fatalf("unexpected color: %+v", got.Data.Light.Color)
	}
}

func TestHandleMessage_ParsesSensorReport(t *testing.T) {
	var got devices.Device
	b := New("mqtt", config.MQTTConfig{}, func(d devices.Device) { got = d }, nil)

	payload, _ := json.Marshal(wirePayload{Name: "Hall Sensor", Kind: "sensor", SensorValue: 21.5})
	b.handleMessage(nil, &fakeMessage{topic: "hearth/state/mqtt/sensor1", payload: payload})

	if got.Data.Kind != devices.KindSensor {
		t.Fatalf("expected sensor kind, got %v", got.Data.Kind)
	}
	if got.Data.SensorValue.(float64) != 21.5 {
		t.Fatalf("unexpected sensor value: %v", got.Data.SensorValue)
	}
}

func TestHandleMessage_IgnoresMalformedTopic(t *testing.T) {
	called := false
	b := New("mqtt", config.MQTTConfig{}, func(d devices.Device) { called = true }, nil)

	b.handleMessage(nil, &fakeMessage{topic: "hearth/state/mqtt", payload: []byte(`{}`)})
	if called {
		t.Fatal("expected a malformed topic to be ignored, not dispatched")
	}
}

func TestHandleMessage_IgnoresInvalidJSON(t *testing.T) {
	called := false
	b := New("mqtt", config.MQTTConfig{}, func(d devices.Device) { called = true }, nil)

	b.handleMessage(nil, &fakeMessage{topic: "hearth/state/mqtt/lamp1", payload: []byte("not json")})
	if called {
		t.Fatal("expected invalid JSON to be ignored, not dispatched")
	}
}

func TestWireColor_DefaultsToHs(t *testing.T) {
	c := wireColor(wirePayload{Hue: 90, Saturation: 0.5})
	if c.Mode != color.ModeHs || c.Hue != 90 {
		t.Fatalf("expected hs fallback, got %+v", c)
	}
}

func TestWireColor_Xy(t *testing.T) {
	c := wireColor(wirePayload{ColorMode: "xy", X: 0.3, Y: 0.32})
	if c.Mode != color.ModeXy || c.X != 0.3 {
		t.Fatalf("unexpected xy color: %+v", c)
	}
}

func TestBuildClientOptions_UsesTLSScheme(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "hearthd"})
	servers := opts.Servers
	if len(servers) != 1 {
		t.Fatalf("expected exactly one broker configured, got %d", len(servers))
	}
	if servers[0].Scheme != "ssl" {
		t.Fatalf("expected ssl scheme when TLS is set, got %s", servers[0].Scheme)
	}
}
