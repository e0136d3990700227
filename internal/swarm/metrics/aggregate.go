package metrics

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// HistogramConfig bounds the latency histograms, in microseconds.
type HistogramConfig struct {
	Min     int64
	Max     int64
	SigFigs int
}

// DefaultHistogramConfig tracks 1µs up to 1 hour with 3 significant figures.
func DefaultHistogramConfig() HistogramConfig {
	return HistogramConfig{
		Min:     1,
		Max:     3_600_000_000,
		SigFigs: 3,
	}
}

func (c HistogramConfig) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(c.Min, c.Max, c.SigFigs)
}

// endpointKey identifies one stats row.
type endpointKey struct {
	Method string
	Name   string
}

// endpointAggregate holds the running counters for one endpoint.
type endpointAggregate struct {
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	errors     int64
	bytes      int64
	sumLatency time.Duration
	minLatency time.Duration
	maxLatency time.Duration
	firstSeen  time.Time
	lastSeen   time.Time
	messages   map[string]int64
}

func newEndpointAggregate(cfg HistogramConfig) *endpointAggregate {
	return &endpointAggregate{
		hist:     cfg.newHistogram(),
		messages: make(map[string]int64),
	}
}

func (e *endpointAggregate) count() int64 {
	return e.successes + e.failures + e.errors
}

func (e *endpointAggregate) add(o RequestOutcome, cfg HistogramConfig) {
	us := o.Duration.Microseconds()
	if us < cfg.Min {
		us = cfg.Min
	}
	if us > cfg.Max {
		us = cfg.Max
	}
	_ = e.hist.RecordValue(us)

	if e.count() == 0 || o.Duration < e.minLatency {
		e.minLatency = o.Duration
	}
	if o.Duration > e.maxLatency {
		e.maxLatency = o.Duration
	}
	e.sumLatency += o.Duration
	e.bytes += o.Bytes

	if e.firstSeen.IsZero() || (!o.Start.IsZero() && o.Start.Before(e.firstSeen)) {
		e.firstSeen = o.Start
	}
	if end := o.Start.Add(o.Duration); end.After(e.lastSeen) {
		e.lastSeen = end
	}

	switch o.Status {
	case StatusSuccess:
		e.successes++
	case StatusFailure:
		e.failures++
	default:
		e.errors++
	}
	if o.Err != "" {
		e.messages[o.Err]++
	}
}

// merge folds other into e. Both must already hold data.
func (e *endpointAggregate) merge(other *endpointAggregate) {
	if other.count() == 0 {
		return
	}
	if e.count() == 0 || other.minLatency < e.minLatency {
		e.minLatency = other.minLatency
	}
	if other.maxLatency > e.maxLatency {
		e.maxLatency = other.maxLatency
	}
	e.hist.Merge(other.hist)
	e.successes += other.successes
	e.failures += other.failures
	e.errors += other.errors
	e.bytes += other.bytes
	e.sumLatency += other.sumLatency

	if e.firstSeen.IsZero() || (!other.firstSeen.IsZero() && other.firstSeen.Before(e.firstSeen)) {
		e.firstSeen = other.firstSeen
	}
	if other.lastSeen.After(e.lastSeen) {
		e.lastSeen = other.lastSeen
	}
	for msg, n := range other.messages {
		e.messages[msg] += n
	}
}

func (e *endpointAggregate) stats(key endpointKey) EndpointStats {
	total := e.count()
	st := EndpointStats{
		Name:      key.Name,
		Method:    key.Method,
		Requests:  total,
		Successes: e.successes,
		Failures:  e.failures,
		Errors:    e.errors,
		Bytes:     e.bytes,
	}
	if total == 0 {
		return st
	}

	st.Latency = LatencyStats{
		Min:    e.minLatency,
		Max:    e.maxLatency,
		Mean:   time.Duration(int64(e.sumLatency) / total),
		StdDev: time.Duration(e.hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(e.hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(e.hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(e.hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(e.hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  e.hist.TotalCount(),
	}
	st.FailureRate = float64(e.failures+e.errors) / float64(total)

	if len(e.messages) > 0 {
		st.Messages = make(map[string]int64, len(e.messages))
		for msg, n := range e.messages {
			st.Messages[msg] = n
		}
	}
	return st
}

// Aggregate accumulates request outcomes per endpoint.
//
// Aggregates are mergeable: folding the aggregates of disjoint outcome sets
// together yields the same counters and histograms as adding the union to a
// single Aggregate, in any order. An Aggregate is not safe for concurrent
// use; the Collector shards them.
type Aggregate struct {
	cfg       HistogramConfig
	endpoints map[endpointKey]*endpointAggregate
}

// NewAggregate returns an empty aggregate with default histogram bounds.
func NewAggregate() *Aggregate {
	return NewAggregateWithConfig(DefaultHistogramConfig())
}

// NewAggregateWithConfig returns an empty aggregate with custom histogram bounds.
func NewAggregateWithConfig(cfg HistogramConfig) *Aggregate {
	return &Aggregate{
		cfg:       cfg,
		endpoints: make(map[endpointKey]*endpointAggregate),
	}
}

// Add records one outcome.
func (a *Aggregate) Add(o RequestOutcome) {
	key := endpointKey{Method: o.Method, Name: o.Endpoint}
	ep, ok := a.endpoints[key]
	if !ok {
		ep = newEndpointAggregate(a.cfg)
		a.endpoints[key] = ep
	}
	ep.add(o, a.cfg)
}

// Merge folds other into a. other is left unchanged.
func (a *Aggregate) Merge(other *Aggregate) {
	if other == nil {
		return
	}
	for key, src := range other.endpoints {
		dst, ok := a.endpoints[key]
		if !ok {
			dst = newEndpointAggregate(a.cfg)
			a.endpoints[key] = dst
		}
		dst.merge(src)
	}
}

// Count returns the number of outcomes recorded.
func (a *Aggregate) Count() int64 {
	var n int64
	for _, ep := range a.endpoints {
		n += ep.count()
	}
	return n
}

// Reset drops everything recorded so far.
func (a *Aggregate) Reset() {
	a.endpoints = make(map[endpointKey]*endpointAggregate)
}

// Endpoints returns per-endpoint statistics sorted by name then method, plus
// the totals row across all endpoints.
func (a *Aggregate) Endpoints() ([]EndpointStats, EndpointStats) {
	keys := make([]endpointKey, 0, len(a.endpoints))
	for key := range a.endpoints {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Method < keys[j].Method
	})

	total := newEndpointAggregate(a.cfg)
	rows := make([]EndpointStats, 0, len(keys))
	for _, key := range keys {
		ep := a.endpoints[key]
		rows = append(rows, ep.stats(key))
		total.merge(ep)
	}
	return rows, total.stats(endpointKey{Name: TotalRowName})
}

// TotalRowName names the aggregated row in snapshots.
const TotalRowName = "Aggregated"
