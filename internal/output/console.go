// Package output renders live run statistics and final summaries.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm/engine"
	"github.com/wesleyorama2/hive/internal/swarm/metrics"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"
)

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Name      string
	Host      string
	Users     int
	SpawnRate float64
	// Duration of the run; 0 hides the progress bar
	Duration    time.Duration
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// Console prints live stats while a run is active and a Locust-style
// summary when it ends. It implements engine.Reporter.
type Console struct {
	cfg    ConsoleConfig
	writer io.Writer
	isTTY  bool
	colors *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

var _ engine.Reporter = (*Console)(nil)

// NewConsole creates a console reporter.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	colors := NoColorScheme()
	switch {
	case cfg.NoColor:
	case cfg.ForceColors:
		colors = ForcedColorScheme()
	case isTTY && supportsColors():
		colors = ForcedColorScheme()
	}

	return &Console{
		cfg:    cfg,
		writer: cfg.Writer,
		isTTY:  isTTY,
		colors: colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader() {
	if c.cfg.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.colors.Value.Sprint(strings.Repeat(boxHorizontal, 56))
	name := c.cfg.Name
	if name == "" {
		name = "hive"
	}

	c.writeln(line)
	c.writeln(c.colors.Title.Sprintf("%s - Running", name))
	c.writeln(line)
	c.writeln(fmt.Sprintf("Host:      %s", c.colors.Value.Sprint(c.cfg.Host)))
	c.writeln(fmt.Sprintf("Users:     %s at %s/s", c.colors.Value.Sprint(c.cfg.Users), c.colors.Value.Sprintf("%g", c.cfg.SpawnRate)))
	if c.cfg.Duration > 0 {
		c.writeln(fmt.Sprintf("Duration:  %s", c.colors.Value.Sprint(formatDuration(c.cfg.Duration))))
	}
	c.writeln("")
}

// Report updates the live display. On a terminal the previous block is
// redrawn in place; otherwise one status line is appended.
func (c *Console) Report(snap *metrics.Snapshot) {
	if c.cfg.Quiet || snap == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.statusLine(snap))
		return
	}

	c.clearLive()
	lines := c.renderLive(snap)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *Console) statusLine(snap *metrics.Snapshot) string {
	return fmt.Sprintf("[%s] %s | Users: %d | Reqs: %d | RPS: %.1f | Fails: %d (%.1f%%) | P95: %s",
		formatDuration(snap.Elapsed),
		snap.Phase,
		snap.ActiveUsers,
		snap.Total.Requests,
		snap.RPS,
		snap.Total.Unsuccessful(),
		snap.FailureRate*100,
		formatDurationShort(snap.Total.Latency.P95))
}

func (c *Console) renderLive(snap *metrics.Snapshot) []string {
	var lines []string

	if c.cfg.Duration > 0 {
		progress := float64(snap.Elapsed) / float64(c.cfg.Duration)
		lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Success.Sprint(renderProgressBar(progress, 40)),
			c.colors.Title.Sprintf("%.0f%%", clamp(progress)*100),
			c.colors.Dim.Sprintf("%s / %s", formatDuration(snap.Elapsed), formatDuration(c.cfg.Duration))))
	} else {
		lines = append(lines, fmt.Sprintf("Elapsed:  %s", c.colors.Dim.Sprint(formatDuration(snap.Elapsed))))
	}
	lines = append(lines, fmt.Sprintf("Phase:    %s", c.colors.Phase.Sprint(snap.Phase)))
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	users := fmt.Sprintf("Users:   %s / %d", c.colors.Value.Sprint(snap.ActiveUsers), c.cfg.Users)
	reqs := fmt.Sprintf("Requests:    %s", c.colors.Value.Sprint(formatNumber(snap.Total.Requests)))
	lines = append(lines, c.boxRow(users, reqs, boxWidth))

	rateColor := c.colors.rateColor(snap.FailureRate)
	rps := fmt.Sprintf("RPS:     %s", c.colors.Success.Sprintf("%.1f", snap.RPS))
	fails := fmt.Sprintf("Fails:       %s (%s)",
		rateColor.Sprint(snap.Total.Unsuccessful()),
		rateColor.Sprintf("%.1f%%", snap.FailureRate*100))
	lines = append(lines, c.boxRow(rps, fails, boxWidth))

	p95 := fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(formatDurationShort(snap.Total.Latency.P95)))
	avg := fmt.Sprintf("Avg:         %s", c.colors.Latency.Sprint(formatDurationShort(snap.Total.Latency.Mean)))
	lines = append(lines, c.boxRow(p95, avg, boxWidth))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// boxRow formats a row inside the stats box with two columns.
func (c *Console) boxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2
	pad := func(s string) string {
		n := colWidth - visibleLen(s)
		if n < 0 {
			n = 0
		}
		return s + strings.Repeat(" ", n)
	}
	bar := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s %s %s", bar, pad(left), bar, pad(right), bar)
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

// Summary prints the final stats tables, the error report and the
// threshold verdicts.
func (c *Console) Summary(res *engine.Result) {
	if res == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Quiet {
		if res.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	line := c.colors.Value.Sprint(strings.Repeat(boxHorizontal, 56))
	status := c.colors.Success.Sprint("Completed ✓")
	if !res.Passed {
		status = c.colors.Error.Sprint("Failed ✗")
	}
	name := c.cfg.Name
	if name == "" {
		name = "hive"
	}

	c.writeln("")
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(name), status))
	c.writeln(line)
	c.writeln(fmt.Sprintf("Run:           %s", res.RunID))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(res.Duration))))
	c.writeln(fmt.Sprintf("Stopped by:    %s", c.colors.Value.Sprint(res.Reason)))
	if res.ErrorMessage != "" {
		c.writeln(fmt.Sprintf("Error:         %s", c.colors.Error.Sprint(res.ErrorMessage)))
	}
	c.writeln("")

	if snap := res.Stats; snap != nil {
		c.writeStatsTable(snap)
		c.writePercentiles(snap)
		c.writeErrorReport(snap)
		if snap.TaskErrors > 0 || snap.AbandonedUsers > 0 {
			c.writeln(fmt.Sprintf("Task errors: %d   Abandoned users: %d", snap.TaskErrors, snap.AbandonedUsers))
			c.writeln("")
		}
	}

	if len(res.Thresholds) > 0 {
		c.writeln(c.colors.Title.Sprint("Thresholds:"))
		for _, t := range res.Thresholds {
			icon := c.colors.SuccessIcon()
			if !t.Passed {
				icon = c.colors.ErrorIcon()
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

const statsRowFormat = "%-8s %-32s %8s %12s | %7s %7s %7s %7s | %8s %10s"

func (c *Console) writeStatsTable(snap *metrics.Snapshot) {
	c.writeln(c.colors.Title.Sprintf(statsRowFormat,
		"Type", "Name", "# reqs", "# fails", "Avg", "Min", "Max", "Med", "req/s", "failures/s"))
	c.writeln(c.colors.Dim.Sprint(strings.Repeat("-", 118)))
	for _, ep := range snap.Endpoints {
		c.writeln(c.statsRow(ep, snap.Elapsed))
	}
	c.writeln(c.colors.Dim.Sprint(strings.Repeat("-", 118)))
	c.writeln(c.statsRow(snap.Total, snap.Elapsed))
	c.writeln("")
}

func (c *Console) statsRow(ep metrics.EndpointStats, elapsed time.Duration) string {
	fails := ep.Unsuccessful()
	failRate := 0.0
	if ep.Requests > 0 {
		failRate = float64(fails) / float64(ep.Requests)
	}
	failsPerSec := 0.0
	if elapsed > 0 {
		failsPerSec = float64(fails) / elapsed.Seconds()
	}
	failText := fmt.Sprintf("%d(%.2f%%)", fails, failRate*100)
	row := fmt.Sprintf(statsRowFormat,
		ep.Method, truncate(ep.Name, 32),
		formatNumber(ep.Requests), failText,
		formatMillis(ep.Latency.Mean), formatMillis(ep.Latency.Min),
		formatMillis(ep.Latency.Max), formatMillis(ep.Latency.P50),
		fmt.Sprintf("%.2f", ep.RPS), fmt.Sprintf("%.2f", failsPerSec))
	if fails > 0 {
		return c.colors.rateColor(failRate).Sprint(row)
	}
	return row
}

const percentileRowFormat = "%-8s %-32s %7s %7s %7s %7s %7s %8s"

func (c *Console) writePercentiles(snap *metrics.Snapshot) {
	c.writeln(c.colors.Title.Sprint("Response time percentiles (approximated)"))
	c.writeln(c.colors.Title.Sprintf(percentileRowFormat, "Type", "Name", "50%", "90%", "95%", "99%", "100%", "# reqs"))
	c.writeln(c.colors.Dim.Sprint(strings.Repeat("-", 94)))
	row := func(ep metrics.EndpointStats) string {
		return fmt.Sprintf(percentileRowFormat,
			ep.Method, truncate(ep.Name, 32),
			formatMillis(ep.Latency.P50), formatMillis(ep.Latency.P90),
			formatMillis(ep.Latency.P95), formatMillis(ep.Latency.P99),
			formatMillis(ep.Latency.Max), formatNumber(ep.Requests))
	}
	for _, ep := range snap.Endpoints {
		c.writeln(row(ep))
	}
	c.writeln(c.colors.Dim.Sprint(strings.Repeat("-", 94)))
	c.writeln(row(snap.Total))
	c.writeln("")
}

func (c *Console) writeErrorReport(snap *metrics.Snapshot) {
	type occurrence struct {
		count int64
		text  string
	}
	var errs []occurrence
	for _, ep := range snap.Endpoints {
		for msg, n := range ep.Messages {
			errs = append(errs, occurrence{n, fmt.Sprintf("%s %s: %s", ep.Method, ep.Name, msg)})
		}
	}
	if len(errs) == 0 {
		return
	}
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].count != errs[j].count {
			return errs[i].count > errs[j].count
		}
		return errs[i].text < errs[j].text
	})

	c.writeln(c.colors.Title.Sprint("Error report"))
	c.writeln(c.colors.Title.Sprintf("%-14s %s", "# occurrences", "Error"))
	c.writeln(c.colors.Dim.Sprint(strings.Repeat("-", 94)))
	for _, e := range errs {
		c.writeln(c.colors.Error.Sprintf("%-14d %s", e.count, e.text))
	}
	c.writeln("")
}

// write writes to the output without a newline.
func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}
