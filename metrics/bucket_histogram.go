package metrics

import (
	"math"
	"sync"
)

// LatencyBuckets is the fixed set of cumulative latency buckets (in
// milliseconds) used for request/operation latency histograms, plus an
// implicit +Inf bucket.
var LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// BucketHistogram is a cumulative, fixed-bucket histogram in the
// Prometheus sense: each bucket counts observations <= its upper bound,
// and bucket counts are non-decreasing as the bound increases. Unlike
// Histogram (which tracks count/sum/min/max/mean summary-style), this
// type exposes the `le=` cumulative counts the exposition format needs.
type BucketHistogram struct {
	name    string
	bounds  []float64
	mu      sync.Mutex
	counts  []int64 // counts[i] = observations <= bounds[i]; counts[len(bounds)] = +Inf bucket
	count   int64
	sum     float64
}

// NewBucketHistogram creates a BucketHistogram over the given ascending
// bounds (in the same unit as observed values). The +Inf bucket is
// implicit and always present.
func NewBucketHistogram(name string, bounds []float64) *BucketHistogram {
	return &BucketHistogram{
		name:   name,
		bounds: bounds,
		counts: make([]int64, len(bounds)+1),
	}
}

// NewLatencyHistogram creates a BucketHistogram over the standard
// LatencyBuckets set.
func NewLatencyHistogram(name string) *BucketHistogram {
	return NewBucketHistogram(name, LatencyBuckets)
}

// Observe records a value, incrementing every bucket whose bound is >= v
// (including the implicit +Inf bucket).
func (h *BucketHistogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, bound := range h.bounds {
		if v <= bound {
			h.counts[i]++
		}
	}
	h.counts[len(h.bounds)]++ // +Inf
}

// Count returns the total number of observations.
func (h *BucketHistogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *BucketHistogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Name returns the metric name.
func (h *BucketHistogram) Name() string { return h.name }

// BucketCounts returns a snapshot of (upper bound, cumulative count)
// pairs, in ascending bound order, followed by the +Inf bucket
// (math.Inf(1), cumulative count).
func (h *BucketHistogram) BucketCounts() []BucketCount {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]BucketCount, len(h.bounds)+1)
	for i, b := range h.bounds {
		out[i] = BucketCount{UpperBound: b, Count: h.counts[i]}
	}
	out[len(h.bounds)] = BucketCount{UpperBound: math.Inf(1), Count: h.counts[len(h.bounds)]}
	return out
}

// BucketCount is one cumulative le= bucket.
type BucketCount struct {
	UpperBound float64
	Count      int64
}
