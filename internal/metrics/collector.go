package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"github.com/objectfs/amrmeta/internal/config"
	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// Collector records collective and pass metrics for the AMR metadata passes
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   zerolog.Logger

	// Prometheus metrics
	collectiveCounter  *prometheus.CounterVec
	collectiveDuration *prometheus.HistogramVec
	collectiveBytes    *prometheus.HistogramVec
	passCounter        *prometheus.CounterVec
	passDuration       *prometheus.HistogramVec
	blockCounter       *prometheus.CounterVec
	errorCounter       *prometheus.CounterVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time

	server *http.Server
}

var _ types.MetricsCollector = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// OperationMetrics tracks metrics for one collective or pass
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalBytes    int64         `json:"total_bytes"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      0,
		Path:      "/metrics",
		Namespace: "amrmeta",
		Labels:    make(map[string]string),
	}
}

// ConfigFrom maps the monitoring section of the application configuration
func ConfigFrom(m config.MetricsConfig) *Config {
	cfg := &Config{
		Enabled:   m.Enabled,
		Port:      m.Port,
		Path:      m.Path,
		Namespace: m.Namespace,
		Labels:    make(map[string]string, len(m.CustomLabels)),
	}
	for k, v := range m.CustomLabels {
		cfg.Labels[k] = v
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	return cfg
}

// NewCollector creates a new metrics collector with a private registry
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Collector{config: config, logger: zerolog.Nop()}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		logger:     zerolog.Nop(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// SetLogger sets the logger used by the metrics endpoint
func (c *Collector) SetLogger(logger zerolog.Logger) {
	c.logger = logger.With().Str("component", "metrics").Logger()
}

// Registry returns the collector's registry, nil when disabled
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registry
func (c *Collector) Handler() http.Handler {
	if c.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start serves the metrics endpoint. A zero port keeps the registry but
// serves nothing.
func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled() || c.config.Port == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	mux.HandleFunc("/health", c.healthHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error().Err(err).Int("port", c.config.Port).Msg("metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	c.logger.Info().Int("port", c.config.Port).Str("path", c.config.Path).Msg("metrics endpoint started")
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordCollective records one collective call
func (c *Collector) RecordCollective(op string, bytes int, duration time.Duration, err error) {
	if !c.enabled() {
		return
	}

	c.track("collective:"+op, duration, int64(bytes), err)

	c.collectiveCounter.With(prometheus.Labels{"op": op, "status": status(err)}).Inc()
	c.collectiveDuration.With(prometheus.Labels{"op": op}).Observe(duration.Seconds())
	if bytes > 0 {
		c.collectiveBytes.With(prometheus.Labels{"op": op}).Observe(float64(bytes))
	}
	if err != nil {
		c.RecordError(op, err)
	}
}

// RecordPass records one metadata pass
func (c *Collector) RecordPass(pass string, duration time.Duration, err error) {
	if !c.enabled() {
		return
	}

	c.track("pass:"+pass, duration, 0, err)

	c.passCounter.With(prometheus.Labels{"pass": pass, "status": status(err)}).Inc()
	c.passDuration.With(prometheus.Labels{"pass": pass}).Observe(duration.Seconds())
	if err != nil {
		c.RecordError(pass, err)
	}
}

// RecordBlocks records how many blocks a strip pass rebuilt and how many it
// passed through unchanged
func (c *Collector) RecordBlocks(stripped, shallow int) {
	if !c.enabled() {
		return
	}

	c.blockCounter.With(prometheus.Labels{"kind": "stripped"}).Add(float64(stripped))
	c.blockCounter.With(prometheus.Labels{"kind": "shallow"}).Add(float64(shallow))
}

// RecordError records an error by its error code
func (c *Collector) RecordError(operation string, err error) {
	if !c.enabled() || err == nil {
		return
	}

	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"code":      string(amrerrors.CodeOf(err)),
	}).Inc()

	var ae *amrerrors.AMRError
	if errors.As(err, &ae) {
		c.logger.Debug().Str("operation", operation).Str("error", ae.String()).Msg("error recorded")
	}
}

// GetMetrics returns a copy of the per-operation tracking
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics clears the per-operation tracking. Prometheus series are
// cumulative and are left alone.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Snapshot gathers the registry and flattens counters into name{labels} keys.
// Histograms contribute their sample count.
func (c *Collector) Snapshot() (map[string]float64, error) {
	if c.registry == nil {
		return map[string]float64{}, nil
	}

	families, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName() + formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func (c *Collector) enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled && c.registry != nil
}

func (c *Collector) track(name string, duration time.Duration, bytes int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.operations[name]
	if !ok {
		m = &OperationMetrics{}
		c.operations[name] = m
	}
	m.Count++
	m.TotalDuration += duration
	m.TotalBytes += bytes
	if err != nil {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
}

func (c *Collector) initMetrics() {
	constLabels := prometheus.Labels(c.config.Labels)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
			Buckets:     buckets,
		}, labels)
	}

	c.collectiveCounter = counter("collectives_total", "Total number of collective calls", "op", "status")
	c.collectiveDuration = histogram("collective_duration_seconds", "Time spent inside collectives",
		prometheus.ExponentialBuckets(0.0001, 2, 16), "op") // 100us to ~3s
	c.collectiveBytes = histogram("collective_bytes", "Payload bytes per collective call",
		prometheus.ExponentialBuckets(32, 4, 12), "op")
	c.passCounter = counter("passes_total", "Total number of metadata passes", "pass", "status")
	c.passDuration = histogram("pass_duration_seconds", "Duration of metadata passes",
		prometheus.ExponentialBuckets(0.001, 2, 15), "pass") // 1ms to ~16s
	c.blockCounter = counter("blocks_total", "Blocks handled by ghost stripping", "kind")
	c.errorCounter = counter("errors_total", "Total number of errors by code", "operation", "code")
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.collectiveCounter,
		c.collectiveDuration,
		c.collectiveBytes,
		c.passCounter,
		c.passDuration,
		c.blockCounter,
		c.errorCounter,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"amrmeta-metrics"}`))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
