package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm/metrics"
)

// Thresholds are pass/fail gates evaluated against the final snapshot.
//
// Expressions have the form "<metric> <op> <value>", for example
// "p95 < 500ms", "rate < 0.01" or "count > 1000".
type Thresholds struct {
	// Latency expressions over min, max, avg, p50, p90, p95, p99
	Latency []string `json:"latency,omitempty" yaml:"latency,omitempty"`

	// FailureRate expressions over rate (0..1)
	FailureRate []string `json:"failureRate,omitempty" yaml:"failureRate,omitempty"`

	// Requests expressions over count or rate (requests per second)
	Requests []string `json:"requests,omitempty" yaml:"requests,omitempty"`
}

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// Empty reports whether no thresholds are configured.
func (t *Thresholds) Empty() bool {
	return t == nil || len(t.Latency)+len(t.FailureRate)+len(t.Requests) == 0
}

// Validate parses every expression without evaluating it.
func (t *Thresholds) Validate() error {
	if t == nil {
		return nil
	}
	for _, expr := range t.Latency {
		metric, op, value, err := parseThresholdExpression(expr)
		if err != nil {
			return fmt.Errorf("thresholds.latency: %w", err)
		}
		if !latencyMetric(metric) {
			return fmt.Errorf("thresholds.latency: unknown metric %q", metric)
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("thresholds.latency: %q: %w", expr, err)
		}
		if !validOperator(op) {
			return fmt.Errorf("thresholds.latency: unknown operator %q", op)
		}
	}
	for _, expr := range t.FailureRate {
		if err := validateNumeric(expr, "rate"); err != nil {
			return fmt.Errorf("thresholds.failureRate: %w", err)
		}
	}
	for _, expr := range t.Requests {
		if err := validateNumeric(expr, "count", "rate"); err != nil {
			return fmt.Errorf("thresholds.requests: %w", err)
		}
	}
	return nil
}

func validateNumeric(expr string, allowed ...string) error {
	metric, op, value, err := parseThresholdExpression(expr)
	if err != nil {
		return err
	}
	known := false
	for _, m := range allowed {
		known = known || m == metric
	}
	if !known {
		return fmt.Errorf("unknown metric %q, expected one of %v", metric, allowed)
	}
	if !validOperator(op) {
		return fmt.Errorf("unknown operator %q", op)
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return fmt.Errorf("%q: %w", expr, err)
	}
	return nil
}

// Evaluate checks every threshold against snap.
func (t *Thresholds) Evaluate(snap *metrics.Snapshot) []ThresholdResult {
	if t.Empty() || snap == nil {
		return nil
	}

	var results []ThresholdResult
	for _, expr := range t.Latency {
		results = append(results, evaluateLatency(expr, snap))
	}
	for _, expr := range t.FailureRate {
		results = append(results, evaluateFailureRate(expr, snap))
	}
	for _, expr := range t.Requests {
		results = append(results, evaluateRequests(expr, snap))
	}
	return results
}

func evaluateLatency(expr string, snap *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "latency", Expression: expr}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	lat := snap.Total.Latency
	var actual time.Duration
	switch metric {
	case "min":
		actual = lat.Min
	case "max":
		actual = lat.Max
	case "avg", "mean":
		actual = lat.Mean
	case "p50", "med":
		actual = lat.P50
	case "p90":
		actual = lat.P90
	case "p95":
		actual = lat.P95
	case "p99":
		actual = lat.P99
	default:
		result.Message = fmt.Sprintf("unknown metric: %s", metric)
		return result
	}

	limit, err := time.ParseDuration(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actual.String()
	result.Passed = compareValues(float64(actual), op, float64(limit))
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", metric, actual, op, limit)
	}
	return result
}

func evaluateFailureRate(expr string, snap *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "failureRate", Expression: expr}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	if metric != "rate" {
		result.Message = fmt.Sprintf("failureRate only supports 'rate', got: %s", metric)
		return result
	}
	limit, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", snap.FailureRate)
	result.Passed = compareValues(snap.FailureRate, op, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("failure rate is %.4f, threshold: %s %.4f", snap.FailureRate, op, limit)
	}
	return result
}

func evaluateRequests(expr string, snap *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "requests", Expression: expr}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	limit, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actual float64
	switch metric {
	case "count":
		actual = float64(snap.Total.Requests)
	case "rate":
		actual = snap.RPS
	default:
		result.Message = fmt.Sprintf("requests only supports 'count' or 'rate', got: %s", metric)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actual)
	result.Passed = compareValues(actual, op, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", metric, actual, op, limit)
	}
	return result
}

// parseThresholdExpression parses an expression like "p95 < 500ms".
func parseThresholdExpression(expr string) (metric, op, value string, err error) {
	matches := thresholdPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return "", "", "", fmt.Errorf("invalid expression format: %s", expr)
	}
	return matches[1], matches[2], strings.TrimSpace(matches[3]), nil
}

func latencyMetric(m string) bool {
	switch m {
	case "min", "max", "avg", "mean", "med", "p50", "p90", "p95", "p99":
		return true
	}
	return false
}

func validOperator(op string) bool {
	switch op {
	case "<", "<=", ">", ">=", "==", "=", "!=", "<>":
		return true
	}
	return false
}

func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
