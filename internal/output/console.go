// Package output renders run progress and reports for the terminal and
// as JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/engine"
	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
)

// Cursor control for the live display.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	ruleWidth = 56
	boxWidth  = 55

	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64 // 0.0 to 1.0
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64
	FailClosed    int64
	Dropped       int64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	CurrentStage int // 1-indexed, 0 outside ramping runs
	TotalStages  int
}

// Console manages console output during a run.
type Console struct {
	name          string
	executorType  string
	totalDuration time.Duration
	writer        io.Writer
	isTTY         bool
	colors        *ColorScheme
	quiet         bool

	mu          sync.Mutex
	linesOutput int
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Name          string
	ExecutorType  string
	TotalDuration time.Duration
	Writer        io.Writer
	Quiet         bool
	NoColor       bool
	ForceColors   bool
	ForceTTY      bool
}

// NewConsole creates a console output handler.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	colors := NoColorScheme()
	if !config.NoColor && (config.ForceColors || (isTTY && supportsColors())) {
		colors = DefaultColorScheme()
	}

	return &Console{
		name:          config.Name,
		executorType:  config.ExecutorType,
		totalDuration: config.TotalDuration,
		writer:        config.Writer,
		isTTY:         isTTY,
		colors:        colors,
		quiet:         config.Quiet,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader(target string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	title := c.name + " - Running"
	if c.executorType != "" {
		title += fmt.Sprintf(" [%s]", c.executorType)
	}

	c.writeln(rule)
	c.writeln(c.colors.Title.Sprint(title))
	if target != "" {
		c.writeln(c.colors.Dim.Sprintf("target %s, up to %s", target, formatDuration(c.totalDuration)))
	}
	c.writeln(rule)
	c.writeln("")
}

// Report renders stats the way the output supports: a redrawn box on a
// terminal, one line per call otherwise.
func (c *Console) Report(stats *LiveStats) {
	if c.quiet {
		return
	}
	if c.isTTY {
		c.Update(stats)
		return
	}
	c.PrintNonInteractiveUpdate(stats)
}

// Update redraws the live display with new statistics.
func (c *Console) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *Console) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *Console) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	bar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Pass.Sprint(bar),
		c.colors.Title.Sprintf("%.0f%%", stats.Progress*100),
		c.colors.Dim.Sprint(timeInfo)))

	phase := stats.CurrentPhase
	if stats.TotalStages > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, "Phase:    "+c.colors.Phase.Sprint(phase), "")

	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vus := fmt.Sprintf("VUs:     %s / %d", c.colors.Value.Sprint(stats.ActiveVUs), stats.TargetVUs)
	reqs := "Requests:    " + c.colors.Value.Sprint(formatNumber(stats.TotalRequests))
	lines = append(lines, c.formatBoxRow(vus, reqs))

	rps := "RPS:     " + c.colors.Pass.Sprintf("%.1f", stats.CurrentRPS)
	errColor := c.colors.rate(stats.ErrorRate)
	errs := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprint(stats.Errors),
		errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rps, errs))

	p95 := "P95:     " + c.colors.Timing.Sprint(formatDurationShort(stats.LatencyP95))
	avg := "Avg:         " + c.colors.Timing.Sprint(formatDurationShort(stats.LatencyAvg))
	lines = append(lines, c.formatBoxRow(p95, avg))

	fc := "503s:    " + c.colors.Value.Sprint(formatNumber(stats.FailClosed))
	dropColor := c.colors.Pass
	if stats.Dropped > 0 {
		dropColor = c.colors.Warn
	}
	dropped := "Dropped:     " + dropColor.Sprint(formatNumber(stats.Dropped))
	lines = append(lines, c.formatBoxRow(fc, dropped))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow lays out two columns inside the stats box.
func (c *Console) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2
	pad := func(s string) string {
		return s + strings.Repeat(" ", max(0, colWidth-visibleLen(s)))
	}
	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s %s %s", border, pad(left), border, pad(right), border)
}

// PrintNonInteractiveUpdate prints a one-line status, for CI logs and
// other non-terminal output.
func (c *Console) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s %.0f%% | VUs: %d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | 503: %d | Dropped: %d | P95: %s",
		formatDuration(stats.Elapsed),
		stats.CurrentPhase,
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		stats.FailClosed,
		stats.Dropped,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the final report. In quiet mode only the verdict is
// printed.
func (c *Console) PrintSummary(report *engine.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if report.Passed {
			c.writeln(c.colors.Pass.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Fail.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	status := c.colors.Pass.Sprint("Completed ✓")
	if !report.Passed {
		status = c.colors.Fail.Sprint("Failed ✗")
	}
	if report.Interrupted {
		status += c.colors.Warn.Sprint(" (interrupted)")
	}

	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(report.Name), status))
	c.writeln(rule)
	c.writeln("")

	m := report.Metrics
	c.field("Duration", formatDuration(report.Duration))
	if m != nil {
		c.field("Total Reqs", formatNumber(m.TotalRequests))
		c.field("Iterations", formatNumber(m.Iterations))
		c.field("RPS", fmt.Sprintf("%.1f", m.RPS))
		errColor := c.colors.rate(m.ErrorRate)
		c.writeln(fmt.Sprintf("%-15s%s", "Error Rate:", errColor.Sprintf("%.2f%%", m.ErrorRate*100)))
		if m.FailClosedResponses > 0 {
			c.field("Fail-closed", fmt.Sprintf("%s (503)", formatNumber(m.FailClosedResponses)))
		}
		if m.DroppedIterations > 0 {
			c.writeln(fmt.Sprintf("%-15s%s", "Dropped:", c.colors.Warn.Sprint(formatNumber(m.DroppedIterations))))
		}
		c.field("Peak VUs", fmt.Sprintf("%d", m.MaxActiveVUs))
		c.field("Received", formatBytes(m.TotalBytes))
		c.writeln("")

		c.writeln(c.colors.Label.Sprint("Latency Distribution:"))
		for _, row := range []struct {
			name string
			d    time.Duration
		}{
			{"Min", m.Latency.Min},
			{"P50", m.Latency.P50},
			{"P90", m.Latency.P90},
			{"P95", m.Latency.P95},
			{"P99", m.Latency.P99},
			{"Max", m.Latency.Max},
		} {
			c.writeln(fmt.Sprintf("  %-10s %s", row.name+":", formatDurationShort(row.d)))
		}
		c.writeln("")

		if len(m.StatusCodes) > 0 {
			c.writeln(c.colors.Label.Sprint("Status Codes:"))
			codes := make([]int, 0, len(m.StatusCodes))
			for code := range m.StatusCodes {
				codes = append(codes, code)
			}
			sort.Ints(codes)
			for _, code := range codes {
				label := fmt.Sprintf("%d", code)
				if code == 0 {
					label = "error"
				}
				c.writeln(fmt.Sprintf("  %-10s %s", label, formatNumber(m.StatusCodes[code])))
			}
			c.writeln("")
		}
	}

	if len(report.Operations) > 0 {
		c.writeln(c.colors.Label.Sprint("Operations:"))
		for _, op := range report.Operations {
			c.writeln(fmt.Sprintf("  %-15s %8s reqs  p50 %-8s p95 %-8s p99 %s",
				op.Operation, formatNumber(op.Count),
				formatDurationShort(op.Latency.P50),
				formatDurationShort(op.Latency.P95),
				formatDurationShort(op.Latency.P99)))
		}
		c.writeln("")
	}

	if len(report.Checks) > 0 {
		c.writeln(c.colors.Label.Sprint("Checks:"))
		for _, ch := range report.Checks {
			c.writeln(fmt.Sprintf("  %s %s %.2f%% (%d/%d)",
				c.colors.Icon(ch.Failed == 0), ch.Name, ch.Rate*100, ch.Passed, ch.Passed+ch.Failed))
		}
		c.writeln("")
	}

	if len(report.Thresholds) > 0 {
		c.writeln(c.colors.Label.Sprint("Thresholds:"))
		for _, t := range report.Thresholds {
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", c.colors.Icon(t.Passed), t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}

	if report.Error != "" {
		c.writeln(c.colors.Fail.Sprint("Error: ") + report.Error)
		c.writeln("")
	}
}

func (c *Console) field(label, value string) {
	c.writeln(fmt.Sprintf("%-15s%s", label+":", c.colors.Value.Sprint(value)))
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromRun builds LiveStats from a metrics snapshot and the executor's
// stats. Either may be nil early in a run.
func StatsFromRun(snapshot *metrics.Snapshot, exec *executor.Stats, progress float64) *LiveStats {
	stats := &LiveStats{Progress: progress, CurrentPhase: "initializing"}

	if exec != nil {
		stats.TargetVUs = exec.TargetVUs
		stats.TotalStages = exec.TotalStages
		if exec.TotalStages > 0 && exec.CurrentStage >= 0 {
			stats.CurrentStage = exec.CurrentStage + 1
		}
		if exec.TotalDuration > 0 {
			stats.Remaining = max(0, exec.TotalDuration-exec.Elapsed)
		}
	}

	if snapshot == nil {
		return stats
	}

	stats.Elapsed = snapshot.Elapsed
	if progress > 0 && progress < 1 {
		stats.Remaining = time.Duration(float64(snapshot.Elapsed) * (1 - progress) / progress)
	}
	stats.ActiveVUs = snapshot.ActiveVUs
	stats.CurrentRPS = snapshot.RPS
	stats.TotalRequests = snapshot.TotalRequests
	stats.Errors = snapshot.FailedRequests
	stats.ErrorRate = snapshot.ErrorRate
	stats.FailClosed = snapshot.FailClosedResponses
	stats.Dropped = snapshot.DroppedIterations
	stats.LatencyP95 = snapshot.Latency.P95
	stats.LatencyAvg = snapshot.Latency.Mean
	stats.CurrentPhase = string(snapshot.CurrentPhase)
	return stats
}
