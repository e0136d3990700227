package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/hive/internal/swarm/metrics"
)

func thresholdSnapshot() *metrics.Snapshot {
	return &metrics.Snapshot{
		Total: metrics.EndpointStats{
			Requests: 1000,
			Latency: metrics.LatencyStats{
				Min:  2 * time.Millisecond,
				Max:  900 * time.Millisecond,
				Mean: 40 * time.Millisecond,
				P50:  30 * time.Millisecond,
				P90:  120 * time.Millisecond,
				P95:  250 * time.Millisecond,
				P99:  700 * time.Millisecond,
			},
		},
		FailureRate: 0.02,
		RPS:         125,
	}
}

func TestThresholds_Evaluate(t *testing.T) {
	tests := []struct {
		name   string
		th     Thresholds
		passed []bool
	}{
		{"latency pass", Thresholds{Latency: []string{"p95 < 500ms", "max <= 900ms"}}, []bool{true, true}},
		{"latency fail", Thresholds{Latency: []string{"p99 < 500ms"}}, []bool{false}},
		{"failure rate", Thresholds{FailureRate: []string{"rate < 0.01", "rate <= 0.05"}}, []bool{false, true}},
		{"requests", Thresholds{Requests: []string{"count >= 1000", "rate > 200"}}, []bool{true, false}},
		{"unknown metric", Thresholds{Latency: []string{"p42 < 1s"}}, []bool{false}},
		{"bad expression", Thresholds{FailureRate: []string{"whatever"}}, []bool{false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := tt.th.Evaluate(thresholdSnapshot())
			require.Len(t, results, len(tt.passed))
			for i, want := range tt.passed {
				assert.Equal(t, want, results[i].Passed, "%s: %s", results[i].Expression, results[i].Message)
				if !want {
					assert.NotEmpty(t, results[i].Message)
				}
			}
		})
	}
}

func TestThresholds_EmptyAndNil(t *testing.T) {
	var nilTh *Thresholds
	assert.True(t, nilTh.Empty())
	assert.Nil(t, nilTh.Evaluate(thresholdSnapshot()))
	assert.NoError(t, nilTh.Validate())

	assert.True(t, (&Thresholds{}).Empty())
	assert.False(t, (&Thresholds{Requests: []string{"count > 1"}}).Empty())
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"valid", Thresholds{
			Latency:     []string{"p95 < 500ms", "avg<=1s"},
			FailureRate: []string{"rate < 0.01"},
			Requests:    []string{"count > 10", "rate >= 5"},
		}, false},
		{"latency bad duration", Thresholds{Latency: []string{"p95 < fast"}}, true},
		{"latency unknown metric", Thresholds{Latency: []string{"p97 < 1s"}}, true},
		{"latency bad operator", Thresholds{Latency: []string{"p95 =< 1s"}}, true},
		{"failure rate wrong metric", Thresholds{FailureRate: []string{"count < 3"}}, true},
		{"requests not a number", Thresholds{Requests: []string{"count > many"}}, true},
		{"malformed", Thresholds{Requests: []string{"> 3"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual    float64
		op        string
		threshold float64
		want      bool
	}{
		{1, "<", 2, true},
		{2, "<", 2, false},
		{2, "<=", 2, true},
		{3, ">", 2, true},
		{2, ">=", 2, true},
		{2, "==", 2, true},
		{2, "=", 2, true},
		{2, "!=", 3, true},
		{2, "<>", 2, false},
		{2, "~", 2, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareValues(tt.actual, tt.op, tt.threshold), "%v %s %v", tt.actual, tt.op, tt.threshold)
	}
}

func TestPhaseOf(t *testing.T) {
	assert.Equal(t, metrics.PhaseRampUp, phaseOf(1))
	assert.Equal(t, metrics.PhaseSteady, phaseOf(2))
	assert.Equal(t, metrics.PhaseRampDown, phaseOf(3))
	assert.Equal(t, metrics.PhaseStopped, phaseOf(4))
	assert.Equal(t, metrics.PhaseIdle, phaseOf(0))
}
