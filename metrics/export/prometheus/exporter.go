package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/labkit"
	"github.com/MrEthical07/labkit/metrics/export/internaldefs"
)

// PrometheusExporter serves engine metrics in the Prometheus text format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter reads from engine, including its live session count.
func NewPrometheusExporter(engine *labkit.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any [internaldefs.Source]. The
// active-session gauge appears when source also implements
// [internaldefs.SessionCounter].
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves one scrape per request. The session count is read with the
// request's context.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.render(r.Context())))
	})
}

// Render returns the current exposition text, or "" when metrics are off and
// no audit events were seen.
func (p *PrometheusExporter) Render() string {
	return p.render(context.Background())
}

func (p *PrometheusExporter) render(ctx context.Context) string {
	if p == nil || p.source == nil {
		return ""
	}
	sample := internaldefs.Collect(ctx, p.source)
	if sample.Empty() {
		return ""
	}

	var b strings.Builder
	for _, f := range internaldefs.Families {
		points, ok := sample.Points[f.Name]
		if !ok {
			continue
		}
		header(&b, f.Name, f.Help, typeName(f.Kind))
		for _, pt := range points {
			b.WriteString(f.Name)
			writeLabels(&b, pt.Labels)
			b.WriteByte(' ')
			b.WriteString(strconv.FormatUint(pt.Value, 10))
			b.WriteByte('\n')
		}
	}

	if lat := sample.Latency; lat != nil {
		name := internaldefs.LatencyName
		header(&b, name, internaldefs.LatencyHelp, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			b.WriteString(name)
			b.WriteString("_bucket")
			writeLabels(&b, []internaldefs.Label{{Key: "le", Value: le}})
			b.WriteByte(' ')
			b.WriteString(strconv.FormatUint(lat.Cumulative[i], 10))
			b.WriteByte('\n')
		}
		b.WriteString(name + "_sum " + strconv.FormatFloat(lat.Sum.Seconds(), 'g', -1, 64) + "\n")
		b.WriteString(name + "_count " + strconv.FormatUint(lat.Count(), 10) + "\n")
	}
	return b.String()
}

func typeName(k internaldefs.Kind) string {
	if k == internaldefs.Gauge {
		return "gauge"
	}
	return "counter"
}

func header(b *strings.Builder, name, help, typ string) {
	b.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	b.WriteString("# TYPE " + name + " " + typ + "\n")
}

func writeLabels(b *strings.Builder, labels []internaldefs.Label) {
	if len(labels) == 0 {
		return
	}
	b.WriteByte('{')
	for i, l := range labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Key)
		b.WriteString(`="`)
		b.WriteString(escapeLabel(l.Value))
		b.WriteByte('"')
	}
	b.WriteByte('}')
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}

func escapeLabel(v string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`).Replace(v)
}
