// Package report renders a run report as a standalone HTML page.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"strconv"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/engine"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
)

// pageData is what the template renders.
type pageData struct {
	*engine.Report
	TimeSeriesJSON template.JS
}

// seriesPoint is one chart sample. Latencies are nanoseconds.
type seriesPoint struct {
	Timestamp          string  `json:"timestamp"`
	TotalRequests      int64   `json:"totalRequests"`
	IntervalRequests   int64   `json:"intervalRequests"`
	IntervalRPS        float64 `json:"intervalRPS"`
	IntervalErrorRate  float64 `json:"intervalErrorRate"`
	IntervalFailClosed int64   `json:"intervalFailClosed"`
	IntervalDropped    int64   `json:"intervalDropped"`
	LatencyP50         int64   `json:"latencyP50"`
	LatencyP95         int64   `json:"latencyP95"`
	LatencyP99         int64   `json:"latencyP99"`
	ActiveVUs          int     `json:"activeVUs"`
	Phase              string  `json:"phase"`
}

// GenerateHTML renders report and writes it to path.
func GenerateHTML(report *engine.Report, path string) error {
	html, err := GenerateHTMLString(report)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders report as an HTML document.
func GenerateHTMLString(report *engine.Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report cannot be nil")
	}
	if report.Metrics == nil {
		return "", fmt.Errorf("report has no metrics")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	series, err := convertTimeSeriesJSON(report.TimeSeries)
	if err != nil {
		return "", fmt.Errorf("failed to convert time series: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pageData{Report: report, TimeSeriesJSON: template.JS(series)}); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func convertTimeSeriesJSON(buckets []*metrics.TimeBucket) (string, error) {
	if len(buckets) == 0 {
		return "[]", nil
	}

	points := make([]seriesPoint, 0, len(buckets))
	for _, b := range buckets {
		if b == nil {
			continue
		}
		points = append(points, seriesPoint{
			Timestamp:          b.Timestamp.Format(time.RFC3339),
			TotalRequests:      b.TotalRequests,
			IntervalRequests:   b.IntervalRequests,
			IntervalRPS:        b.IntervalRPS,
			IntervalErrorRate:  b.IntervalErrorRate,
			IntervalFailClosed: b.IntervalFailClosed,
			IntervalDropped:    b.IntervalDropped,
			LatencyP50:         int64(b.LatencyP50),
			LatencyP95:         int64(b.LatencyP95),
			LatencyP99:         int64(b.LatencyP99),
			ActiveVUs:          b.ActiveVUs,
			Phase:              string(b.Phase),
		})
	}

	data, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatLatency":  formatLatency,
		"formatBytes":    formatBytes,
		"percent":        percent,
		"successRate":    successRate,
		"droppedTotal":   droppedTotal,
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		mins, secs := int(d.Minutes()), int(d.Seconds())%60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours, mins := int(d.Hours()), int(d.Minutes())%60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatNumber adds thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var b bytes.Buffer
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		us := float64(d.Microseconds())
		if us < 100 {
			return fmt.Sprintf("%.1fµs", us)
		}
		return fmt.Sprintf("%dµs", int(us))
	case d < time.Second:
		ms := float64(d.Microseconds()) / 1000
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		if ms < 100 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	}
	if s := d.Seconds(); s < 10 {
		return fmt.Sprintf("%.2fs", s)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// percent renders a 0..1 fraction with two decimals.
func percent(f float64) string {
	return fmt.Sprintf("%.2f", f*100)
}

// successRate is the share of requests classified as success, in percent.
func successRate(m *metrics.Snapshot) float64 {
	if m == nil || m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessRequests) / float64(m.TotalRequests) * 100
}

// droppedTotal is the larger of the executor and metrics counts.
func droppedTotal(r *engine.Report) int64 {
	if r.Scenario != nil && r.Scenario.DroppedIterations > r.Metrics.DroppedIterations {
		return r.Scenario.DroppedIterations
	}
	return r.Metrics.DroppedIterations
}
