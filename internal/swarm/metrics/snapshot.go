package metrics

import "time"

// Snapshot contains a point-in-time view of all metrics.
//
// Snapshots are derived values: every call to Collector.Snapshot builds a new
// one and nothing inside it is shared with the collector.
type Snapshot struct {
	Endpoints      []EndpointStats `json:"endpoints"`
	Total          EndpointStats   `json:"total"`
	FailureRate    float64         `json:"failureRate"`
	RPS            float64         `json:"rps"`
	ActiveUsers    int             `json:"activeUsers"`
	AbandonedUsers int64           `json:"abandonedUsers"`
	TaskErrors     int64           `json:"taskErrors"`
	Phase          Phase           `json:"phase"`
	Elapsed        time.Duration   `json:"elapsed"`
	StartTime      time.Time       `json:"startTime"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Total = s.Total.clone()
	if s.Endpoints != nil {
		c.Endpoints = make([]EndpointStats, len(s.Endpoints))
		for i, ep := range s.Endpoints {
			c.Endpoints[i] = ep.clone()
		}
	}
	return &c
}

// Endpoint returns the stats row for name, matching any method when method
// is empty.
func (s *Snapshot) Endpoint(method, name string) (EndpointStats, bool) {
	for _, ep := range s.Endpoints {
		if ep.Name == name && (method == "" || ep.Method == method) {
			return ep, true
		}
	}
	return EndpointStats{}, false
}

// EndpointStats contains the statistics for one request name.
type EndpointStats struct {
	Name        string           `json:"name"`
	Method      string           `json:"method,omitempty"`
	Requests    int64            `json:"requests"`
	Successes   int64            `json:"successes"`
	Failures    int64            `json:"failures"`
	Errors      int64            `json:"errors"`
	Bytes       int64            `json:"bytes"`
	FailureRate float64          `json:"failureRate"`
	RPS         float64          `json:"rps"`
	Latency     LatencyStats     `json:"latency"`
	Messages    map[string]int64 `json:"messages,omitempty"`
}

func (e EndpointStats) clone() EndpointStats {
	if e.Messages != nil {
		msgs := make(map[string]int64, len(e.Messages))
		for k, v := range e.Messages {
			msgs[k] = v
		}
		e.Messages = msgs
	}
	return e
}

// Unsuccessful returns failures plus errors.
func (e EndpointStats) Unsuccessful() int64 {
	return e.Failures + e.Errors
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
