package output

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/hive/internal/swarm/engine"
	"github.com/wesleyorama2/hive/internal/swarm/metrics"
)

// Format is a machine-readable summary format.
type Format string

const (
	// FormatJSON is the full summary as indented JSON
	FormatJSON Format = "json"
	// FormatYAML is the full summary as YAML
	FormatYAML Format = "yaml"
	// FormatJUnit reports thresholds as JUnit test cases (for CI/CD integration)
	FormatJUnit Format = "junit"
	// FormatCSV is one stats row per endpoint
	FormatCSV Format = "csv"
	// FormatHTML is a standalone HTML report
	FormatHTML Format = "html"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatJUnit, FormatCSV, FormatHTML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "xml":
		return FormatJUnit, nil
	case "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown output format %q (json, yaml, junit, csv, html)", s)
}

// RunSummary is the serialisable form of a run result.
type RunSummary struct {
	Name        string                   `json:"name,omitempty" yaml:"name,omitempty"`
	RunID       string                   `json:"runId" yaml:"runId"`
	StartTime   string                   `json:"startTime" yaml:"startTime"`
	EndTime     string                   `json:"endTime" yaml:"endTime"`
	DurationMs  int64                    `json:"durationMs" yaml:"durationMs"`
	Reason      string                   `json:"reason" yaml:"reason"`
	Passed      bool                     `json:"passed" yaml:"passed"`
	Error       string                   `json:"error,omitempty" yaml:"error,omitempty"`
	FailureRate float64                  `json:"failureRate" yaml:"failureRate"`
	RPS         float64                  `json:"rps" yaml:"rps"`
	TaskErrors  int64                    `json:"taskErrors" yaml:"taskErrors"`
	Abandoned   int64                    `json:"abandonedUsers" yaml:"abandonedUsers"`
	Endpoints   []EndpointSummary        `json:"endpoints" yaml:"endpoints"`
	Total       EndpointSummary          `json:"total" yaml:"total"`
	Phases      []PhaseSummary           `json:"phases,omitempty" yaml:"phases,omitempty"`
	Thresholds  []engine.ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// EndpointSummary is one stats row with latencies in milliseconds.
type EndpointSummary struct {
	Method      string           `json:"method,omitempty" yaml:"method,omitempty"`
	Name        string           `json:"name" yaml:"name"`
	Requests    int64            `json:"requests" yaml:"requests"`
	Failures    int64            `json:"failures" yaml:"failures"`
	Errors      int64            `json:"errors" yaml:"errors"`
	FailureRate float64          `json:"failureRate" yaml:"failureRate"`
	RPS         float64          `json:"rps" yaml:"rps"`
	Bytes       int64            `json:"bytes" yaml:"bytes"`
	MinMs       float64          `json:"minMs" yaml:"minMs"`
	MeanMs      float64          `json:"meanMs" yaml:"meanMs"`
	MaxMs       float64          `json:"maxMs" yaml:"maxMs"`
	P50Ms       float64          `json:"p50Ms" yaml:"p50Ms"`
	P90Ms       float64          `json:"p90Ms" yaml:"p90Ms"`
	P95Ms       float64          `json:"p95Ms" yaml:"p95Ms"`
	P99Ms       float64          `json:"p99Ms" yaml:"p99Ms"`
	Messages    map[string]int64 `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// PhaseSummary records when the run entered a phase.
type PhaseSummary struct {
	Phase    string `json:"phase" yaml:"phase"`
	At       string `json:"at" yaml:"at"`
	Requests int64  `json:"requests" yaml:"requests"`
}

// Summarize converts a result into its serialisable form.
func Summarize(name string, res *engine.Result) *RunSummary {
	s := &RunSummary{
		Name:       name,
		RunID:      res.RunID,
		StartTime:  res.StartTime.Format(time.RFC3339Nano),
		EndTime:    res.EndTime.Format(time.RFC3339Nano),
		DurationMs: res.Duration.Milliseconds(),
		Reason:     string(res.Reason),
		Passed:     res.Passed,
		Error:      res.ErrorMessage,
		Thresholds: res.Thresholds,
		Endpoints:  []EndpointSummary{},
	}
	for _, p := range res.Phases {
		s.Phases = append(s.Phases, PhaseSummary{
			Phase:    string(p.Phase),
			At:       p.Timestamp.Format(time.RFC3339Nano),
			Requests: p.Requests,
		})
	}
	if snap := res.Stats; snap != nil {
		s.FailureRate = snap.FailureRate
		s.RPS = snap.RPS
		s.TaskErrors = snap.TaskErrors
		s.Abandoned = snap.AbandonedUsers
		for _, ep := range snap.Endpoints {
			s.Endpoints = append(s.Endpoints, summarizeEndpoint(ep))
		}
		s.Total = summarizeEndpoint(snap.Total)
	}
	return s
}

func summarizeEndpoint(ep metrics.EndpointStats) EndpointSummary {
	return EndpointSummary{
		Method:      ep.Method,
		Name:        ep.Name,
		Requests:    ep.Requests,
		Failures:    ep.Failures,
		Errors:      ep.Errors,
		FailureRate: ep.FailureRate,
		RPS:         ep.RPS,
		Bytes:       ep.Bytes,
		MinMs:       ms(ep.Latency.Min),
		MeanMs:      ms(ep.Latency.Mean),
		MaxMs:       ms(ep.Latency.Max),
		P50Ms:       ms(ep.Latency.P50),
		P90Ms:       ms(ep.Latency.P90),
		P95Ms:       ms(ep.Latency.P95),
		P99Ms:       ms(ep.Latency.P99),
		Messages:    ep.Messages,
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// WriteResult writes the run result to w in the given format.
func WriteResult(w io.Writer, name string, res *engine.Result, format Format) error {
	if res == nil {
		return fmt.Errorf("no result to write")
	}
	summary := Summarize(name, res)

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summary); err != nil {
			return err
		}
		return enc.Close()
	case FormatJUnit:
		return writeJUnit(w, summary)
	case FormatCSV:
		return writeCSV(w, summary)
	case FormatHTML:
		return writeHTML(w, summary)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// JUnitTestSuites represents the root element containing all test suites
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a JUnit test suite
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemOut string          `xml:"system-out,omitempty"`
}

// JUnitTestCase represents a JUnit test case
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitFailure `xml:"error,omitempty"`
}

// JUnitFailure represents a JUnit test failure
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// writeJUnit maps every threshold to a test case so CI can gate on a run.
// A run that ended abnormally adds an errored "run" case.
func writeJUnit(w io.Writer, s *RunSummary) error {
	suiteName := s.Name
	if suiteName == "" {
		suiteName = "hive"
	}
	suite := JUnitTestSuite{
		Name:      suiteName,
		Time:      float64(s.DurationMs) / 1000.0,
		Timestamp: s.StartTime,
		SystemOut: fmt.Sprintf("requests=%d failures=%d rps=%.2f p95=%.1fms reason=%s",
			s.Total.Requests, s.Total.Failures+s.Total.Errors, s.RPS, s.Total.P95Ms, s.Reason),
	}

	runCase := JUnitTestCase{Name: "run", Classname: "hive." + suiteName, Time: suite.Time}
	if s.Error != "" {
		runCase.Error = &JUnitFailure{Message: s.Error, Type: "RunError", Content: s.Error}
		suite.Errors++
	}
	suite.TestCases = append(suite.TestCases, runCase)

	for _, t := range s.Thresholds {
		tc := JUnitTestCase{
			Name:      fmt.Sprintf("%s: %s", t.Metric, t.Expression),
			Classname: "hive." + suiteName + ".thresholds",
		}
		if !t.Passed {
			tc.Failure = &JUnitFailure{
				Message: t.Message,
				Type:    "ThresholdFailed",
				Content: fmt.Sprintf("actual: %s", t.Value),
			}
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Tests = len(suite.TestCases)

	out, err := xml.MarshalIndent(JUnitTestSuites{TestSuites: []JUnitTestSuite{suite}}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal junit report: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}

var csvHeader = []string{
	"Type", "Name", "Request Count", "Failure Count",
	"Median Response Time", "Average Response Time", "Min Response Time", "Max Response Time",
	"Average Content Size", "Requests/s", "Failures/s",
	"90%", "95%", "99%",
}

// writeCSV writes one row per endpoint plus the aggregated row.
func writeCSV(w io.Writer, s *RunSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	seconds := float64(s.DurationMs) / 1000
	rows := append(append([]EndpointSummary{}, s.Endpoints...), s.Total)
	sort.SliceStable(rows[:len(rows)-1], func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Method < rows[j].Method
	})

	for _, ep := range rows {
		fails := ep.Failures + ep.Errors
		avgSize, failsPerSec := 0.0, 0.0
		if ep.Requests > 0 {
			avgSize = float64(ep.Bytes) / float64(ep.Requests)
		}
		if seconds > 0 {
			failsPerSec = float64(fails) / seconds
		}
		record := []string{
			ep.Method, ep.Name,
			strconv.FormatInt(ep.Requests, 10), strconv.FormatInt(fails, 10),
			fmtFloat(ep.P50Ms), fmtFloat(ep.MeanMs), fmtFloat(ep.MinMs), fmtFloat(ep.MaxMs),
			fmtFloat(avgSize), fmtFloat(ep.RPS), fmtFloat(failsPerSec),
			fmtFloat(ep.P90Ms), fmtFloat(ep.P95Ms), fmtFloat(ep.P99Ms),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
