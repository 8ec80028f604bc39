package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ironsheep/shape-classifier/internal/config"
	"github.com/ironsheep/shape-classifier/internal/metrics"
	"github.com/ironsheep/shape-classifier/internal/pipeline"
	"github.com/ironsheep/shape-classifier/internal/scores"
)

func sampleResult() pipeline.Result {
	return pipeline.Result{
		Seq:       42,
		Label:     "Kite",
		Index:     3,
		Score:     0.75,
		Ranking:   []scores.Score{{Label: "Kite", Index: 3, Value: 0.75}, {Label: "Rhombus", Index: 5, Value: 0.2}},
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Latency:   12 * time.Millisecond,
	}
}

func TestLog_Deliver(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewLog(zap.New(core))

	if err := s.Deliver(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	entries := logs.FilterMessage("shape classified").All()
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["label"] != "Kite" || fields["seq"] != uint64(42) {
		t.Errorf("fields: got %v", fields)
	}
	if _, ok := fields["ranking"]; !ok {
		t.Error("ranking should be logged when present")
	}
}

func TestJSON_Deliver(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSON(&buf)

	res := sampleResult()
	for i := 0; i < 2; i++ {
		if err := s.Deliver(context.Background(), res); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if got["label"] != "Kite" || got["seq"] != float64(42) {
		t.Errorf("payload: got %v", got)
	}
	if got["latency_ns"] != float64(12*time.Millisecond) {
		t.Errorf("latency: got %v", got["latency_ns"])
	}
	if ranking, ok := got["ranking"].([]interface{}); !ok || len(ranking) != 2 {
		t.Errorf("ranking: got %v", got["ranking"])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestJSON_WriteError(t *testing.T) {
	if err := NewJSON(failingWriter{}).Deliver(context.Background(), sampleResult()); err == nil {
		t.Error("Deliver should report write errors")
	}
}

type closingSink struct {
	pipeline.SinkFunc
	closed bool
}

func (c *closingSink) Close() error {
	c.closed = true
	return nil
}

func TestMulti_DeliversToAll(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("metrics.New failed: %v", err)
	}

	var delivered []string
	ok := func(name string) pipeline.SinkFunc {
		return func(context.Context, pipeline.Result) error {
			delivered = append(delivered, name)
			return nil
		}
	}
	failing := pipeline.SinkFunc(func(context.Context, pipeline.Result) error {
		delivered = append(delivered, "mqtt")
		return errors.New("broker unavailable")
	})
	closer := &closingSink{SinkFunc: ok("json")}

	multi := NewMulti(m,
		Named{Name: "log", Sink: ok("log")},
		Named{Name: "mqtt", Sink: failing},
		Named{Name: "json", Sink: closer},
	)

	err = multi.Deliver(context.Background(), sampleResult())
	if err == nil || !strings.Contains(err.Error(), "mqtt: broker unavailable") {
		t.Errorf("error: got %v", err)
	}
	if strings.Join(delivered, ",") != "log,mqtt,json" {
		t.Errorf("delivery order: got %v", delivered)
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("mqtt")); got != 1 {
		t.Errorf("mqtt failures: got %v, want 1", got)
	}

	if err := multi.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !closer.closed {
		t.Error("Close should close closable sinks")
	}
}

// fakeToken completes immediately with err unless hold is set.
type fakeToken struct {
	done   chan struct{}
	err    error
	waited time.Duration
}

func newFakeToken(err error, hold bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if !hold {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	t.waited = d
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// fakeClient records publishes. Methods the sink does not use panic
// through the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	connected    bool
	connectErr   error
	connectToken *fakeToken
	publishErr   error
	hold         bool
	messages     []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.connectToken = newFakeToken(c.connectErr, c.hold)
	c.connected = c.connectErr == nil && !c.hold
	return c.connectToken
}

func (c *fakeClient) IsConnectionOpen() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return newFakeToken(c.publishErr, c.hold)
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func mqttConfig() config.MQTTConfig {
	return config.MQTTConfig{Topic: "shapes/label", QoS: 1, Retain: true, Timeout: 50 * time.Millisecond}
}

func TestMQTT_Connect(t *testing.T) {
	client := &fakeClient{}
	cfg := mqttConfig()
	cfg.Timeout = 0

	s, err := connect(client, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if client.connectToken.waited != defaultTimeout {
		t.Errorf("connect wait: got %v, want %v", client.connectToken.waited, defaultTimeout)
	}
	if s.timeout != defaultTimeout {
		t.Errorf("publish timeout: got %v, want %v", s.timeout, defaultTimeout)
	}
	if client.disconnected {
		t.Error("a successful connect must not disconnect")
	}
}

func TestMQTT_ConnectFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		want   string
	}{
		{"refused", &fakeClient{connectErr: errors.New("not authorized")}, "not authorized"},
		{"timeout", &fakeClient{hold: true}, "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := connect(tt.client, mqttConfig(), zap.NewNop())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
			if !tt.client.disconnected {
				t.Error("a failed connect should disconnect the client")
			}
		})
	}
}

func TestMQTT_Deliver(t *testing.T) {
	client := &fakeClient{connected: true}
	s := newMQTT(client, mqttConfig(), zap.NewNop())

	if err := s.Deliver(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(client.messages) != 1 {
		t.Fatalf("messages: got %d, want 1", len(client.messages))
	}

	msg := client.messages[0]
	if msg.topic != "shapes/label" || msg.qos != 1 || !msg.retain {
		t.Errorf("publish options: got %+v", msg)
	}
	var payload pipeline.Result
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload.Label != "Kite" || payload.Seq != 42 {
		t.Errorf("payload: got %+v", payload)
	}

	s.Close()
	if !client.disconnected {
		t.Error("Close should disconnect")
	}
}

func TestMQTT_DeliverErrors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		want   string
	}{
		{"not connected", &fakeClient{}, "not connected"},
		{"publish error", &fakeClient{connected: true, publishErr: errors.New("denied")}, "denied"},
		{"timeout", &fakeClient{connected: true, hold: true}, "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMQTT(tt.client, mqttConfig(), zap.NewNop())
			err := s.Deliver(context.Background(), sampleResult())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestMQTT_DeliverCancelled(t *testing.T) {
	s := newMQTT(&fakeClient{connected: true, hold: true}, config.MQTTConfig{Timeout: time.Minute}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Deliver(ctx, sampleResult()); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
