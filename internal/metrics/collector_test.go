package metrics

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/objectfs/amrmeta/internal/config"
	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "amrmeta",
			Subsystem: "test",
		}
		collector, err := NewCollector(config)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.Registry() == nil {
			t.Error("collector registry is nil")
		}
		if collector.operations == nil {
			t.Error("collector.operations map is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Port != 0 {
			t.Errorf("default port = %d, want 0", collector.config.Port)
		}
		if collector.config.Path != "/metrics" {
			t.Errorf("default path = %q, want %q", collector.config.Path, "/metrics")
		}
		if collector.config.Namespace != "amrmeta" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "amrmeta")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.Registry() != nil {
			t.Error("disabled collector should not have registry")
		}

		// recording on a disabled collector is a no-op
		collector.RecordCollective("allgather", 10, time.Millisecond, nil)
		collector.RecordPass("generate", time.Millisecond, nil)
		collector.RecordBlocks(1, 2)
		if got := collector.GetMetrics(); len(got) != 0 {
			t.Errorf("disabled collector tracked %d operations", len(got))
		}
	})
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	m := config.NewDefault().Monitoring.Metrics
	m.Path = ""
	cfg := ConfigFrom(m)

	if !cfg.Enabled {
		t.Error("Enabled = false, want true")
	}
	if cfg.Path != "/metrics" {
		t.Errorf("Path = %q, want /metrics", cfg.Path)
	}
	if cfg.Labels["service"] != "amrmeta" {
		t.Errorf("Labels[service] = %q, want amrmeta", cfg.Labels["service"])
	}

	m.CustomLabels["service"] = "changed"
	if cfg.Labels["service"] != "amrmeta" {
		t.Error("ConfigFrom must copy labels")
	}
}

func TestRecordCollective(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordCollective("allgather", 64, 2*time.Millisecond, nil)
	collector.RecordCollective("allgather", 32, 4*time.Millisecond, nil)
	collector.RecordCollective("allreduce_min", 48, time.Millisecond, errors.New("peer lost"))

	ok := testutil.ToFloat64(collector.collectiveCounter.With(prometheus.Labels{"op": "allgather", "status": "success"}))
	if ok != 2 {
		t.Errorf("allgather successes = %v, want 2", ok)
	}
	failed := testutil.ToFloat64(collector.collectiveCounter.With(prometheus.Labels{"op": "allreduce_min", "status": "error"}))
	if failed != 1 {
		t.Errorf("allreduce_min errors = %v, want 1", failed)
	}
	unknown := testutil.ToFloat64(collector.errorCounter.With(prometheus.Labels{"operation": "allreduce_min", "code": "UNKNOWN_ERROR"}))
	if unknown != 1 {
		t.Errorf("errors_total{code=UNKNOWN_ERROR} = %v, want 1", unknown)
	}

	ops := collector.GetMetrics()
	gather := ops["collective:allgather"]
	if gather.Count != 2 || gather.TotalBytes != 96 {
		t.Errorf("allgather tracking = %+v, want count 2 and 96 bytes", gather)
	}
	if gather.AvgDuration != 3*time.Millisecond {
		t.Errorf("allgather avg duration = %v, want 3ms", gather.AvgDuration)
	}
	if ops["collective:allreduce_min"].Errors != 1 {
		t.Errorf("allreduce_min errors tracked = %d, want 1", ops["collective:allreduce_min"].Errors)
	}
}

func TestRecordPass(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordPass("generate", 10*time.Millisecond, nil)
	collector.RecordPass("strip", 5*time.Millisecond, amrerrors.Consistency("ghost depths disagree"))
	collector.RecordBlocks(3, 1)
	collector.RecordBlocks(0, 2)

	code := testutil.ToFloat64(collector.errorCounter.With(prometheus.Labels{
		"operation": "strip",
		"code":      string(amrerrors.ErrCodeConsistency),
	}))
	if code != 1 {
		t.Errorf("consistency errors = %v, want 1", code)
	}
	if got := testutil.ToFloat64(collector.blockCounter.With(prometheus.Labels{"kind": "stripped"})); got != 3 {
		t.Errorf("stripped blocks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.blockCounter.With(prometheus.Labels{"kind": "shallow"})); got != 3 {
		t.Errorf("shallow blocks = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(collector.passDuration); n != 2 {
		t.Errorf("pass duration series = %d, want 2", n)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(&Config{
		Enabled:   true,
		Namespace: "amrmeta",
		Labels:    map[string]string{"job": "test"},
	})
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordPass("generate", time.Millisecond, nil)

	snap, err := collector.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	key := `amrmeta_passes_total{job="test",pass="generate",status="success"}`
	if snap[key] != 1 {
		t.Errorf("snapshot[%s] = %v, want 1 (snapshot: %v)", key, snap[key], snap)
	}
	hkey := `amrmeta_pass_duration_seconds{job="test",pass="generate"}`
	if snap[hkey] != 1 {
		t.Errorf("snapshot[%s] = %v, want 1", hkey, snap[hkey])
	}

	disabled, _ := NewCollector(&Config{Enabled: false})
	empty, err := disabled.Snapshot()
	if err != nil || len(empty) != 0 {
		t.Errorf("disabled Snapshot() = %v, %v; want empty, nil", empty, err)
	}
}

func TestResetMetrics(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordCollective("broadcast", 8, time.Millisecond, nil)
	before := collector.lastReset
	time.Sleep(time.Millisecond)
	collector.ResetMetrics()

	if len(collector.GetMetrics()) != 0 {
		t.Error("ResetMetrics() left tracked operations")
	}
	if !collector.lastReset.After(before) {
		t.Error("ResetMetrics() did not advance lastReset")
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}
	collector.RecordCollective("allgather", 64, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "amrmeta_collectives_total") {
		t.Error("exposition does not contain amrmeta_collectives_total")
	}

	rec = httptest.NewRecorder()
	collector.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health body = %q", rec.Body.String())
	}

	disabled, _ := NewCollector(&Config{Enabled: false})
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled handler status = %d, want 404", rec.Code)
	}
}

func TestStartWithoutPort(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := collector.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if collector.server != nil {
		t.Error("Start() with port 0 must not create a server")
	}
	if err := collector.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestNilCollector(t *testing.T) {
	t.Parallel()

	var collector *Collector
	collector.RecordCollective("allgather", 1, time.Millisecond, nil)
	collector.RecordPass("generate", time.Millisecond, nil)
	collector.RecordBlocks(1, 1)
	collector.RecordError("generate", errors.New("x"))
}

func TestRecordError_LogsStructuredError(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	var buf bytes.Buffer
	collector.SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	collector.RecordError("distribute", amrerrors.Protocol("truncated buffer").WithDetail("sender", 2))
	collector.RecordError("distribute", errors.New("plain"))

	out := buf.String()
	if !strings.Contains(out, "Code=PROTOCOL_ERROR") || !strings.Contains(out, "sender:2") {
		t.Errorf("error log = %q, want the structured error", out)
	}
	if strings.Count(out, "error recorded") != 1 {
		t.Errorf("error log = %q, want one entry for the AMR error only", out)
	}
}
