package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/engine"
	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/threshold"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{2 * time.Hour, "2h 00m 00s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{2500 * time.Microsecond, "2.50ms"},
		{150 * time.Millisecond, "150ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDurationShort(tt.duration); got != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatNumber(tt.number); got != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, got, tt.expected)
			}
		})
	}
}

func TestStripANSI(t *testing.T) {
	colored := DefaultColorScheme().Pass.Sprint("green")
	if got := stripANSI(colored); got != "green" {
		t.Errorf("stripANSI(%q) = %q", colored, got)
	}
	if got := visibleLen(colored + " ✓"); got != 7 {
		t.Errorf("visibleLen = %d, want 7", got)
	}
}

func TestProgressBar(t *testing.T) {
	for _, p := range []float64{-1, 0, 0.5, 1, 2} {
		bar := renderProgressBar(p, 20)
		if n := len([]rune(bar)); n != 22 {
			t.Errorf("renderProgressBar(%v) has %d runes, want 22", p, n)
		}
	}
	if bar := renderProgressBar(0.5, 4); bar != "[██░░]" {
		t.Errorf("renderProgressBar(0.5, 4) = %q", bar)
	}
}

func sampleReport(passed bool) *engine.Report {
	return &engine.Report{
		Name:     "baseline",
		Executor: "constant-arrival-rate",
		Duration: 5 * time.Minute,
		Passed:   passed,
		Metrics: &metrics.Snapshot{
			TotalRequests:       300000,
			FailedRequests:      120,
			FailClosedResponses: 40,
			DroppedIterations:   12,
			Iterations:          299988,
			ErrorRate:           0.0004,
			RPS:                 1000,
			MaxActiveVUs:        230,
			StatusCodes:         map[int]int64{0: 80, 200: 299880, 503: 40},
			Latency: metrics.LatencyStats{
				Min: 2 * time.Millisecond,
				P50: 20 * time.Millisecond,
				P95: 90 * time.Millisecond,
				P99: 140 * time.Millisecond,
				Max: 900 * time.Millisecond,
			},
		},
		Operations: []engine.OperationStats{
			{Operation: "transfer", Count: 300000, Latency: metrics.LatencyStats{P95: 90 * time.Millisecond}},
		},
		Checks: []engine.CheckStats{
			{Name: "status 200", Passed: 299880, Failed: 120, Rate: 0.9996},
		},
		Thresholds: []threshold.Result{
			{Metric: "http_req_failed", Expression: "rate<0.01", Passed: true, Value: "0.0004"},
			{Metric: "http_req_duration", Expression: "p(95)<150", Passed: passed, Value: "90ms"},
		},
	}
}

func TestConsole_NotTTYForBuffers(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Name: "smoke", Writer: &buf})
	if c.IsTTY() {
		t.Error("expected non-TTY when writing to a buffer")
	}

	c.Update(&LiveStats{Progress: 0.5})
	if buf.Len() != 0 {
		t.Error("Update must not draw on a non-TTY writer")
	}
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Name: "baseline", Writer: &buf, NoColor: true})

	c.PrintSummary(sampleReport(true))
	summary := buf.String()

	for _, want := range []string{
		"baseline - Completed ✓",
		"300,000",
		"Fail-closed:   40 (503)",
		"Dropped:       12",
		"Peak VUs:      230",
		"error      80",
		"transfer",
		"✗ status 200 99.96% (299880/300000)",
		"✓ http_req_duration p(95)<150 (actual: 90ms)",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "\033[") {
		t.Error("summary contains color codes with NoColor set")
	}
}

func TestConsole_PrintSummaryFailed(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Name: "baseline", Writer: &buf, NoColor: true})

	report := sampleReport(false)
	report.Interrupted = true
	c.PrintSummary(report)

	summary := buf.String()
	if !strings.Contains(summary, "Failed ✗ (interrupted)") {
		t.Errorf("summary should show failure:\n%s", summary)
	}
	if !strings.Contains(summary, "✗ http_req_duration") {
		t.Errorf("summary should mark the failed threshold:\n%s", summary)
	}
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Name: "smoke", Writer: &buf, Quiet: true, NoColor: true})

	c.PrintHeader("http://localhost:8080")
	c.Report(&LiveStats{Progress: 0.5})
	if buf.Len() != 0 {
		t.Errorf("quiet console wrote %q", buf.String())
	}

	c.PrintSummary(sampleReport(false))
	if got := strings.TrimSpace(buf.String()); got != "FAILED" {
		t.Errorf("quiet summary = %q, want FAILED", got)
	}
}

func TestConsole_LiveUpdates(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Name: "spike", Writer: &buf, ForceTTY: true, NoColor: true})

	stats := &LiveStats{Progress: 0.25, ActiveVUs: 300, TargetVUs: 600, TotalRequests: 1234, CurrentPhase: "ramp-up", CurrentStage: 2, TotalStages: 4}
	c.Report(stats)
	first := buf.String()
	if !strings.Contains(first, "ramp-up (2/4)") || !strings.Contains(first, "1,234") {
		t.Errorf("unexpected live display:\n%s", first)
	}

	buf.Reset()
	c.Report(stats)
	if !strings.HasPrefix(buf.String(), "\033[") {
		t.Error("second update should move the cursor back over the previous display")
	}
}

func TestConsole_NonInteractiveUpdate(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Name: "soak", Writer: &buf})

	c.Report(&LiveStats{Elapsed: 90 * time.Second, Progress: 0.5, CurrentPhase: "steady", FailClosed: 3, Dropped: 7})
	line := buf.String()
	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected one line, got %q", line)
	}
	for _, want := range []string{"[1m 30s] steady 50%", "503: 3", "Dropped: 7"} {
		if !strings.Contains(line, want) {
			t.Errorf("line missing %q: %q", want, line)
		}
	}
}

func TestStatsFromRun(t *testing.T) {
	snapshot := &metrics.Snapshot{
		TotalRequests:       500,
		FailedRequests:      10,
		FailClosedResponses: 4,
		DroppedIterations:   2,
		ErrorRate:           0.02,
		RPS:                 50.0,
		ActiveVUs:           10,
		CurrentPhase:        metrics.PhaseRampUp,
		Elapsed:             30 * time.Second,
		Latency:             metrics.LatencyStats{Mean: 20 * time.Millisecond, P95: 50 * time.Millisecond},
	}
	exec := &executor.Stats{TargetVUs: 20, CurrentStage: 1, TotalStages: 3, TotalDuration: time.Minute, Elapsed: 30 * time.Second}

	stats := StatsFromRun(snapshot, exec, 0.5)

	if stats.ActiveVUs != 10 || stats.TargetVUs != 20 {
		t.Errorf("VUs = %d/%d, want 10/20", stats.ActiveVUs, stats.TargetVUs)
	}
	if stats.CurrentStage != 2 || stats.TotalStages != 3 {
		t.Errorf("stage = %d/%d, want 2/3", stats.CurrentStage, stats.TotalStages)
	}
	if stats.Remaining != 30*time.Second {
		t.Errorf("Remaining = %v, want 30s", stats.Remaining)
	}
	if stats.FailClosed != 4 || stats.Dropped != 2 {
		t.Errorf("FailClosed/Dropped = %d/%d, want 4/2", stats.FailClosed, stats.Dropped)
	}
	if stats.CurrentPhase != "ramp-up" {
		t.Errorf("CurrentPhase = %q", stats.CurrentPhase)
	}

	early := StatsFromRun(nil, nil, 0)
	if early.CurrentPhase != "initializing" {
		t.Errorf("CurrentPhase = %q, want initializing", early.CurrentPhase)
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSONFile(path, sampleReport(true)); err != nil {
		t.Fatalf("WriteJSONFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Name       string `json:"name"`
		Passed     bool   `json:"passed"`
		Thresholds []struct {
			Metric string `json:"metric"`
			Passed bool   `json:"passed"`
		} `json:"thresholds"`
		Metrics struct {
			FailClosedResponses int64 `json:"failClosedResponses"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.Name != "baseline" || !decoded.Passed {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Thresholds) != 2 || decoded.Metrics.FailClosedResponses != 40 {
		t.Errorf("decoded = %+v", decoded)
	}
}
