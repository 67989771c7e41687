package aggregate

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time view of the running aggregation.
type Snapshot struct {
	Count   int64   `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

// Aggregator keeps a running count/total/average over successfully processed orders.
// State lives in memory only and starts from zero on every process start.
type Aggregator struct {
	mu    sync.Mutex
	state Snapshot
}

func New() *Aggregator {
	return &Aggregator{}
}

// Update folds one amount into the aggregation and returns the resulting snapshot.
func (a *Aggregator) Update(amount float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.Count++
	a.state.Total += amount
	a.state.Average = a.state.Total / float64(a.state.Count)
	return a.state
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Collectors exposes the aggregation as Prometheus gauges.
func (a *Aggregator) Collectors(namespace string) []prometheus.Collector {
	gauge := func(name, help string, read func(Snapshot) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return read(a.Snapshot())
		})
	}

	return []prometheus.Collector{
		gauge("processed_count", "Number of orders folded into the running aggregation", func(s Snapshot) float64 { return float64(s.Count) }),
		gauge("running_total", "Sum of processed order amounts", func(s Snapshot) float64 { return s.Total }),
		gauge("running_average", "Average processed order amount", func(s Snapshot) float64 { return s.Average }),
	}
}
