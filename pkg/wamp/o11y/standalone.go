package o11y

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// MetricsPublisher is the part of a WAMP client needed to publish metrics
// snapshots. *client.Client implements it.
type MetricsPublisher interface {
	Publish(ctx context.Context, topic wamp.URI, options wamp.Dict, args wamp.List, kwargs wamp.Dict) error
}

// StandaloneMetricsConfig configures the standalone metrics provider
type StandaloneMetricsConfig struct {
	Interval     time.Duration // How often to publish metrics (default: 30s)
	MetricsTopic wamp.URI      // Topic to publish metrics to (default: "wamplink.metrics")
	ServiceName  string        // Service name to include in metrics
}

// MetricsSnapshot is the state of all instruments at one point in time.
type MetricsSnapshot struct {
	Timestamp   time.Time
	ServiceName string
	Counters    map[string]int64
	Histograms  map[string][]float64
	Gauges      map[string]float64
}

// Dict renders the snapshot as the keyword arguments of a publication.
func (s MetricsSnapshot) Dict() wamp.Dict {
	counters := make(map[string]any, len(s.Counters))
	for k, v := range s.Counters {
		counters[k] = v
	}
	histograms := make(map[string]any, len(s.Histograms))
	for k, v := range s.Histograms {
		values := make([]any, len(v))
		for i, f := range v {
			values[i] = f
		}
		histograms[k] = values
	}
	gauges := make(map[string]any, len(s.Gauges))
	for k, v := range s.Gauges {
		gauges[k] = v
	}

	return wamp.Dict{
		"timestamp":    s.Timestamp.UTC().Format(time.RFC3339Nano),
		"service_name": s.ServiceName,
		"counters":     counters,
		"histograms":   histograms,
		"gauges":       gauges,
	}
}

// StandaloneMetricsProvider keeps metrics in memory and publishes a snapshot
// to a WAMP topic periodically, for deployments without an OpenTelemetry
// pipeline. Labels are ignored.
type StandaloneMetricsProvider struct {
	config    StandaloneMetricsConfig
	publisher MetricsPublisher

	counters   sync.Map // map[string]*standaloneCounter
	histograms sync.Map // map[string]*standaloneHistogram
	gauges     sync.Map // map[string]*standaloneGauge

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started int32
}

// NewStandaloneMetricsProvider creates a new standalone metrics provider.
// publisher may be nil when only Snapshot is used.
func NewStandaloneMetricsProvider(publisher MetricsPublisher, config *StandaloneMetricsConfig) *StandaloneMetricsProvider {
	if config == nil {
		config = &StandaloneMetricsConfig{}
	}

	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.MetricsTopic == "" {
		config.MetricsTopic = "wamplink.metrics"
	}
	if config.ServiceName == "" {
		config.ServiceName = "unknown"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &StandaloneMetricsProvider{
		config:    *config,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the periodic metrics publishing
func (s *StandaloneMetricsProvider) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil // Already started
	}

	s.wg.Add(1)
	go s.publishLoop()

	return nil
}

// Stop gracefully stops the metrics publishing
func (s *StandaloneMetricsProvider) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return nil // Already stopped
	}

	s.cancel()
	s.wg.Wait()

	return nil
}

func (s *StandaloneMetricsProvider) publishLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.publishMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *StandaloneMetricsProvider) publishMetrics() {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.Interval)
	defer cancel()

	// A failed publish (e.g. while reconnecting) is retried on the next tick.
	_ = s.publisher.Publish(ctx, s.config.MetricsTopic, wamp.Dict{}, nil, s.Snapshot().Dict())
}

// Snapshot collects the current value of every instrument.
func (s *StandaloneMetricsProvider) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Timestamp:   time.Now(),
		ServiceName: s.config.ServiceName,
		Counters:    make(map[string]int64),
		Histograms:  make(map[string][]float64),
		Gauges:      make(map[string]float64),
	}

	s.counters.Range(func(key, value any) bool {
		snapshot.Counters[key.(string)] = atomic.LoadInt64(&value.(*standaloneCounter).value)
		return true
	})

	s.histograms.Range(func(key, value any) bool {
		histogram := value.(*standaloneHistogram)
		histogram.mu.RLock()
		values := make([]float64, len(histogram.values))
		copy(values, histogram.values)
		histogram.mu.RUnlock()
		snapshot.Histograms[key.(string)] = values
		return true
	})

	s.gauges.Range(func(key, value any) bool {
		snapshot.Gauges[key.(string)] = value.(*standaloneGauge).getValue()
		return true
	})

	return snapshot
}

func (s *StandaloneMetricsProvider) Counter(name string) Counter {
	actual, _ := s.counters.LoadOrStore(name, &standaloneCounter{})
	return actual.(*standaloneCounter)
}

func (s *StandaloneMetricsProvider) Histogram(name string) Histogram {
	actual, _ := s.histograms.LoadOrStore(name, &standaloneHistogram{})
	return actual.(*standaloneHistogram)
}

func (s *StandaloneMetricsProvider) Gauge(name string) Gauge {
	actual, _ := s.gauges.LoadOrStore(name, &standaloneGauge{})
	return actual.(*standaloneGauge)
}

type standaloneCounter struct {
	value int64
}

func (c *standaloneCounter) Add(ctx context.Context, value int64, labels ...Label) {
	atomic.AddInt64(&c.value, value)
}

type standaloneHistogram struct {
	mu     sync.RWMutex
	values []float64
}

func (h *standaloneHistogram) Record(ctx context.Context, value float64, labels ...Label) {
	h.mu.Lock()
	h.values = append(h.values, value)
	h.mu.Unlock()
}

type standaloneGauge struct {
	mu    sync.RWMutex
	value float64
}

func (g *standaloneGauge) Set(ctx context.Context, value float64, labels ...Label) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

func (g *standaloneGauge) getValue() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}
