package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("registering twice on one registry should fail")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.FrameReceived()
	m.FrameReceived()
	m.FrameDropped()
	m.FrameMalformed()
	m.FrameFailed("infer")
	m.RecordClassification("Triangle", 0.01, 0.02)
	m.RecordClassification("Triangle", 0.01, 0.02)
	m.RecordClassification("Circle", 0.01, 0.02)
	m.SinkFailed("mqtt")

	if got := testutil.ToFloat64(m.FramesReceived); got != 2 {
		t.Errorf("received: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped); got != 1 {
		t.Errorf("dropped: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FramesMalformed); got != 1 {
		t.Errorf("malformed: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FrameErrors.WithLabelValues("infer")); got != 1 {
		t.Errorf("infer errors: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Classifications.WithLabelValues("Triangle")); got != 2 {
		t.Errorf("Triangle: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("mqtt")); got != 1 {
		t.Errorf("mqtt sink errors: got %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.InferenceDuration); got != 1 {
		t.Errorf("inference histogram series: got %d, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.FrameReceived()
	m.FrameDropped()
	m.FrameMalformed()
	m.FrameFailed("score")
	m.RecordClassification("Circle", 0, 0)
	m.SinkFailed("log")
}

func TestServe_ExposesMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	m.RecordClassification("Kite", 0.002, 0.004)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, reg, zap.NewNop()) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), `shapecls_classifications_total{label="Kite"} 1`) {
		t.Errorf("metrics output missing classification counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing runtime collector")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("serve returned %v", err)
	}
}
