package monitoring

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/stats"
)

// PrometheusReporter mirrors every stat into a gauge. When a Pushgateway URL
// is set the registry is pushed after each invocation.
type PrometheusReporter struct {
	mu        sync.Mutex
	namespace string
	registry  *prometheus.Registry
	gauges    map[string]*gaugeVec
	pusher    *push.Pusher
	logger    logging.ServiceLogger
}

type gaugeVec struct {
	vec    *prometheus.GaugeVec
	labels []string
}

// PrometheusOptions configures a PrometheusReporter.
type PrometheusOptions struct {
	Namespace string `mapstructure:"namespace"`
	PushURL   string `mapstructure:"push_url"`
	Job       string `mapstructure:"job"`
	// Registry defaults to a fresh registry.
	Registry *prometheus.Registry `mapstructure:"-"`
}

func NewPrometheusReporter(opts PrometheusOptions, logger logging.ServiceLogger) *PrometheusReporter {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	r := &PrometheusReporter{
		namespace: opts.Namespace,
		registry:  opts.Registry,
		gauges:    make(map[string]*gaugeVec),
		logger:    logger,
	}
	if opts.PushURL != "" {
		job := opts.Job
		if job == "" {
			job = opts.Namespace
		}
		r.pusher = push.New(opts.PushURL, job).Gatherer(r.registry)
	}
	return r
}

func newPrometheus(cfg config.Reporter, logger logging.ServiceLogger) (Reporter, error) {
	var opts PrometheusOptions
	if err := cfg.Decode(&opts); err != nil {
		return nil, err
	}
	return NewPrometheusReporter(opts, logger), nil
}

func (r *PrometheusReporter) Name() string { return "prometheus" }

// Registry exposes the underlying registry, e.g. for a scrape handler.
func (r *PrometheusReporter) Registry() *prometheus.Registry { return r.registry }

func (r *PrometheusReporter) Report(ctx context.Context, _ time.Time, in []stats.Stat) error {
	r.mu.Lock()
	// Series absent from this invocation must not keep earlier values.
	for _, g := range r.gauges {
		g.vec.Reset()
	}
	var errs []error
	for _, s := range in {
		g, err := r.gauge(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values := make([]string, len(g.labels))
		for i, l := range g.labels {
			values[i], _ = s.Tag(l)
		}
		g.vec.WithLabelValues(values...).Set(s.Value)
	}
	r.mu.Unlock()

	if r.pusher != nil {
		if err := r.pusher.PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push: %w", err))
		} else {
			r.logger.Debug("pushed metrics", logging.LogFields{"stats": len(in)})
		}
	}
	return errors.Join(errs...)
}

// gauge returns the vector for s, registering it on first use. The label set
// is fixed by the first stat of that name.
func (r *PrometheusReporter) gauge(s stats.Stat) (*gaugeVec, error) {
	name := metricName(s.Name, s.Unit)
	labels := make([]string, len(s.Tags))
	for i, t := range s.Tags {
		labels[i] = labelName(t.Name)
	}
	if g, ok := r.gauges[name]; ok {
		if !slices.Equal(g.labels, labels) {
			return nil, fmt.Errorf("stat %s: labels %v do not match %v", s.Name, labels, g.labels)
		}
		return g, nil
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      "shipflow stat " + s.Name,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.Name, err)
	}
	g := &gaugeVec{vec: vec, labels: labels}
	r.gauges[name] = g
	return g, nil
}

var nameReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_")

func metricName(name string, unit stats.Unit) string {
	n := nameReplacer.Replace(name)
	if unit == stats.UnitBytes && !strings.HasSuffix(n, "_bytes") {
		n += "_bytes"
	}
	return n
}

func labelName(name string) string {
	return nameReplacer.Replace(name)
}
