package metrics

import (
	"sync"
	"time"
)

// WorkCategory is one of the five scored work-epoch categories.
type WorkCategory int

const (
	CategoryTrafficRelay WorkCategory = iota
	CategoryZKProofs
	CategoryMixerOps
	CategoryEntropy
	CategoryRegistryOps
	numWorkCategories
)

// CategoryWeight is the contribution of a category's 0-100 score to
// total_work_score. Weights sum to 1.0.
var CategoryWeight = [numWorkCategories]float64{
	CategoryTrafficRelay: 0.30,
	CategoryZKProofs:     0.25,
	CategoryMixerOps:     0.20,
	CategoryEntropy:      0.15,
	CategoryRegistryOps:  0.10,
}

// categoryBaseline is the raw count that maps to a score of 100 for a
// category (the score is linear and clamped at 100).
var categoryBaseline = [numWorkCategories]float64{
	CategoryTrafficRelay: 10 * 1024 * 1024, // 10 MiB relayed
	CategoryZKProofs:     500,              // 500 proofs generated+verified
	CategoryMixerOps:     200,              // 200 deposit+spend ops
	CategoryEntropy:      1 * 1024 * 1024,  // 1 MiB of CSPRNG draws
	CategoryRegistryOps:  100,              // 100 supervisor lifecycle ops
}

// WorkEpoch tracks the current epoch's per-category counters and scores
// them against fixed baselines into a single total_work_score.
type WorkEpoch struct {
	mu           sync.Mutex
	epochSeconds time.Duration
	epochStart   time.Time
	now          func() time.Time

	counts          [numWorkCategories]float64
	epochNumber     uint64
	submittedOracle bool
}

// NewWorkEpoch creates a work-epoch tracker with fixed epoch length
// epochSeconds.
func NewWorkEpoch(epochSeconds time.Duration, now func() time.Time) *WorkEpoch {
	if now == nil {
		now = time.Now
	}
	return &WorkEpoch{
		epochSeconds: epochSeconds,
		epochStart:   now(),
		now:          now,
	}
}

// Add records n units of work in the given category for the current
// epoch, advancing the epoch first if its time window has elapsed.
func (w *WorkEpoch) Add(cat WorkCategory, n float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceIfDueLocked()
	w.counts[cat] += n
}

// advanceIfDueLocked advances the epoch (resetting counters and the
// oracle-submission flag) if the configured epoch window has elapsed
// since the current epoch started. Caller must hold w.mu.
func (w *WorkEpoch) advanceIfDueLocked() {
	if w.epochSeconds <= 0 {
		return
	}
	now := w.now()
	for now.Sub(w.epochStart) >= w.epochSeconds {
		w.epochStart = w.epochStart.Add(w.epochSeconds)
		w.epochNumber++
		w.counts = [numWorkCategories]float64{}
		w.submittedOracle = false
	}
}

// categoryScore clamps a raw count against its baseline into [0, 100].
func categoryScore(cat WorkCategory, count float64) float64 {
	baseline := categoryBaseline[cat]
	if baseline <= 0 {
		return 0
	}
	score := (count / baseline) * 100
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// Scores returns the current epoch's per-category 0-100 scores.
func (w *WorkEpoch) Scores() [numWorkCategories]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceIfDueLocked()
	var out [numWorkCategories]float64
	for i := WorkCategory(0); i < numWorkCategories; i++ {
		out[i] = categoryScore(i, w.counts[i])
	}
	return out
}

// TotalWorkScore returns the weighted sum of all category scores, in
// [0, 100].
func (w *WorkEpoch) TotalWorkScore() float64 {
	scores := w.Scores()
	var total float64
	for i := WorkCategory(0); i < numWorkCategories; i++ {
		total += scores[i] * CategoryWeight[i]
	}
	return total
}

// EpochNumber returns the current epoch's ordinal number, starting at 0.
func (w *WorkEpoch) EpochNumber() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceIfDueLocked()
	return w.epochNumber
}

// MarkSubmittedToOracle records that the current epoch's score has been
// submitted to the external oracle/contract.
func (w *WorkEpoch) MarkSubmittedToOracle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceIfDueLocked()
	w.submittedOracle = true
}

// SubmittedToOracle reports whether the current epoch's score has
// already been submitted.
func (w *WorkEpoch) SubmittedToOracle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceIfDueLocked()
	return w.submittedOracle
}
