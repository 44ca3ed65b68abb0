package prometheus

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/goliatone/go-entitygraph/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels every entitygraph metric carries. Tags outside this set are
// dropped; missing tags are exported as "".
var Labels = []string{"operation", "status", "collection", "namespace", "error_code"}

// DefaultDurationBuckets are milliseconds.
var DefaultDurationBuckets = prometheus.ExponentialBuckets(1, 2, 14)

// Recorder implements core.MetricsRecorder on a Prometheus registerer. Vectors
// are created on first use of a metric name.
type Recorder struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type Option func(*Recorder)

// WithNamespace prefixes every metric name, e.g. "myapp".
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		buckets:    DefaultDurationBuckets,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counter(r.metricName(name))
	if vec == nil {
		return
	}
	vec.With(labelValues(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogram(r.metricName(name))
	if vec == nil {
		return
	}
	vec.With(labelValues(tags)).Observe(value)
}

func (r *Recorder) counter(name string) *prometheus.CounterVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "entitygraph counter " + name,
	}, Labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil
		}
		vec = existing
	}
	r.counters[name] = vec
	return vec
}

func (r *Recorder) histogram(name string) *prometheus.HistogramVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "entitygraph histogram " + name,
		Buckets: r.buckets,
	}, Labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil
		}
		vec = existing
	}
	r.histograms[name] = vec
	return vec
}

func (r *Recorder) metricName(name string) string {
	name = sanitize(name)
	if name == "" {
		return ""
	}
	if r.namespace != "" {
		return r.namespace + "_" + name
	}
	return name
}

// sanitize maps a dotted metric name such as entitygraph.commit.duration_ms
// onto the Prometheus charset.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == ':':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

func labelValues(tags map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(Labels))
	for _, label := range Labels {
		out[label] = tags[label]
	}
	return out
}

var _ core.MetricsRecorder = (*Recorder)(nil)
