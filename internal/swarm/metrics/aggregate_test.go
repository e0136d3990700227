package metrics

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func outcome(endpoint string, d time.Duration, status Status) RequestOutcome {
	o := RequestOutcome{
		Endpoint: endpoint,
		Method:   "GET",
		Start:    time.Unix(1_700_000_000, 0),
		Duration: d,
		Status:   status,
		Bytes:    100,
	}
	if status != StatusSuccess {
		o.Err = "HTTP 500"
	}
	return o
}

func randomOutcomes(n int, seed int64) []RequestOutcome {
	rng := rand.New(rand.NewSource(seed))
	endpoints := []string{"/v1/healthcheck", "/v1/movies", "/v1/movies/1"}
	out := make([]RequestOutcome, n)
	for i := range out {
		status := StatusSuccess
		switch r := rng.Intn(10); {
		case r == 0:
			status = StatusError
		case r < 3:
			status = StatusFailure
		}
		d := time.Duration(rng.Intn(200)+1) * time.Millisecond
		out[i] = outcome(endpoints[rng.Intn(len(endpoints))], d, status)
		out[i].Start = out[i].Start.Add(time.Duration(i) * time.Millisecond)
	}
	return out
}

func aggregateOf(outcomes []RequestOutcome) *Aggregate {
	a := NewAggregate()
	for _, o := range outcomes {
		a.Add(o)
	}
	return a
}

func assertSameStats(t *testing.T, got, want *Aggregate) {
	t.Helper()

	gotRows, gotTotal := got.Endpoints()
	wantRows, wantTotal := want.Endpoints()

	if len(gotRows) != len(wantRows) {
		t.Fatalf("endpoint rows = %d, want %d", len(gotRows), len(wantRows))
	}
	rows := append(gotRows, gotTotal)
	expected := append(wantRows, wantTotal)
	for i := range rows {
		g, w := rows[i], expected[i]
		if g.Name != w.Name || g.Method != w.Method {
			t.Fatalf("row %d = %s %s, want %s %s", i, g.Method, g.Name, w.Method, w.Name)
		}
		if g.Requests != w.Requests || g.Successes != w.Successes ||
			g.Failures != w.Failures || g.Errors != w.Errors || g.Bytes != w.Bytes {
			t.Errorf("%s counters = %+v, want %+v", g.Name, g, w)
		}
		if g.Latency != w.Latency {
			t.Errorf("%s latency = %+v, want %+v", g.Name, g.Latency, w.Latency)
		}
		if fmt.Sprint(g.Messages) != fmt.Sprint(w.Messages) {
			t.Errorf("%s messages = %v, want %v", g.Name, g.Messages, w.Messages)
		}
	}
}

func TestAggregate_Add(t *testing.T) {
	a := NewAggregate()
	a.Add(outcome("/a", 10*time.Millisecond, StatusSuccess))
	a.Add(outcome("/a", 30*time.Millisecond, StatusFailure))
	a.Add(outcome("/b", 20*time.Millisecond, StatusError))

	if a.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", a.Count())
	}

	rows, total := a.Endpoints()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Name != "/a" || rows[1].Name != "/b" {
		t.Errorf("rows not sorted by name: %s, %s", rows[0].Name, rows[1].Name)
	}
	if rows[0].Successes != 1 || rows[0].Failures != 1 {
		t.Errorf("/a = %+v", rows[0])
	}
	if rows[0].Latency.Min != 10*time.Millisecond || rows[0].Latency.Max != 30*time.Millisecond {
		t.Errorf("/a min/max = %v/%v", rows[0].Latency.Min, rows[0].Latency.Max)
	}
	if rows[0].Latency.Mean != 20*time.Millisecond {
		t.Errorf("/a mean = %v, want 20ms", rows[0].Latency.Mean)
	}
	if total.Name != TotalRowName || total.Requests != 3 || total.Errors != 1 {
		t.Errorf("total = %+v", total)
	}
	if total.FailureRate < 0.66 || total.FailureRate > 0.67 {
		t.Errorf("total failure rate = %v, want 2/3", total.FailureRate)
	}
	if total.Messages["HTTP 500"] != 2 {
		t.Errorf("messages = %v", total.Messages)
	}
}

func TestAggregate_MergeMatchesUnion(t *testing.T) {
	all := randomOutcomes(5000, 42)
	left, right := all[:1800], all[1800:]

	merged := aggregateOf(left)
	merged.Merge(aggregateOf(right))

	assertSameStats(t, merged, aggregateOf(all))
}

func TestAggregate_MergeIsAssociative(t *testing.T) {
	all := randomOutcomes(3000, 7)
	a, b, c := all[:1000], all[1000:2000], all[2000:]

	// (a+b)+c
	left := aggregateOf(a)
	left.Merge(aggregateOf(b))
	left.Merge(aggregateOf(c))

	// a+(b+c)
	bc := aggregateOf(b)
	bc.Merge(aggregateOf(c))
	right := aggregateOf(a)
	right.Merge(bc)

	// c+b+a
	reversed := aggregateOf(c)
	reversed.Merge(aggregateOf(b))
	reversed.Merge(aggregateOf(a))

	assertSameStats(t, left, right)
	assertSameStats(t, left, reversed)
}

func TestAggregate_MergeLeavesSourceUntouched(t *testing.T) {
	src := aggregateOf(randomOutcomes(100, 1))
	before := src.Count()

	dst := NewAggregate()
	dst.Merge(src)
	dst.Add(outcome("/extra", time.Millisecond, StatusSuccess))

	if src.Count() != before {
		t.Errorf("source count changed from %d to %d", before, src.Count())
	}
	dst.Merge(nil)
	if dst.Count() != before+1 {
		t.Errorf("dst count = %d, want %d", dst.Count(), before+1)
	}
}

func TestAggregate_ClampsOutOfRangeLatency(t *testing.T) {
	a := NewAggregateWithConfig(HistogramConfig{Min: 1, Max: 1_000_000, SigFigs: 3})
	a.Add(outcome("/slow", 5*time.Second, StatusSuccess))
	a.Add(outcome("/fast", 0, StatusSuccess))

	rows, _ := a.Endpoints()
	for _, r := range rows {
		if r.Latency.Count != 1 {
			t.Errorf("%s histogram count = %d, want 1", r.Name, r.Latency.Count)
		}
	}
}

func TestAggregate_Reset(t *testing.T) {
	a := aggregateOf(randomOutcomes(10, 3))
	a.Reset()
	if a.Count() != 0 {
		t.Errorf("Count() after Reset = %d", a.Count())
	}
	rows, total := a.Endpoints()
	if len(rows) != 0 || total.Requests != 0 {
		t.Errorf("Endpoints() after Reset = %v, %+v", rows, total)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusSuccess, "success"},
		{StatusFailure, "failure"},
		{StatusError, "error"},
		{Status(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
