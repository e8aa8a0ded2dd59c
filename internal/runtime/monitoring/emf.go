package monitoring

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/jsoncodec"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/stats"
)

// DefaultNamespace is used when a reporter does not configure one.
const DefaultNamespace = "shipflow"

type emfMetric struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type emfDirective struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []emfMetric `json:"Metrics"`
}

type emfMetadata struct {
	Timestamp         int64          `json:"Timestamp"`
	CloudWatchMetrics []emfDirective `json:"CloudWatchMetrics"`
}

// EMFReporter writes CloudWatch embedded metric format documents, one line
// per distinct tag set, so the log pipeline of the host extracts them.
type EMFReporter struct {
	namespace string
	mu        sync.Mutex
	out       io.Writer
}

func NewEMFReporter(namespace string, out io.Writer) *EMFReporter {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if out == nil {
		out = os.Stdout
	}
	return &EMFReporter{namespace: namespace, out: out}
}

func newEMF(cfg config.Reporter, _ logging.ServiceLogger) (Reporter, error) {
	var s struct {
		Namespace string `mapstructure:"namespace"`
	}
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	return NewEMFReporter(s.Namespace, nil), nil
}

func (r *EMFReporter) Name() string { return "cloudwatch_emf" }

func (r *EMFReporter) Report(_ context.Context, invokeTime time.Time, in []stats.Stat) error {
	docs := r.Documents(invokeTime, in)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range docs {
		line, err := jsoncodec.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := r.out.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Documents groups stats by tag set. Each group shares its dimensions and
// carries one metric value per stat name.
func (r *EMFReporter) Documents(invokeTime time.Time, in []stats.Stat) []map[string]any {
	var (
		order  []string
		groups = map[string]map[string]any{}
	)
	for _, s := range in {
		key := tagKey(s.Tags)
		doc, ok := groups[key]
		if !ok {
			dims := make([]string, len(s.Tags))
			doc = make(map[string]any, len(s.Tags)+2)
			for i, t := range s.Tags {
				dims[i] = t.Name
				doc[t.Name] = dimensionValue(t.Value)
			}
			doc["_aws"] = &emfMetadata{
				Timestamp: invokeTime.UnixMilli(),
				CloudWatchMetrics: []emfDirective{{
					Namespace:  r.namespace,
					Dimensions: [][]string{dims},
				}},
			}
			groups[key] = doc
			order = append(order, key)
		}
		meta := doc["_aws"].(*emfMetadata)
		if _, exists := doc[s.Name]; !exists {
			meta.CloudWatchMetrics[0].Metrics = append(meta.CloudWatchMetrics[0].Metrics, emfMetric{Name: s.Name, Unit: string(s.Unit)})
		}
		doc[s.Name] = s.Value
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out
}

func dimensionValue(v string) string {
	if v == "" {
		return "None"
	}
	return v
}

func tagKey(tags []stats.Tag) string {
	var b strings.Builder
	for _, t := range tags {
		b.WriteString(t.Name)
		b.WriteByte('=')
		b.WriteString(t.Value)
		b.WriteByte(0x1f)
	}
	return b.String()
}
