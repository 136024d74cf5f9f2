package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts windowed samples slower than TargetP95MS.
	OverTarget int            `json:"over_target,omitempty"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// stageWindow keeps the last maxSamples observations per stage in a ring.
type stageWindow struct {
	mu         sync.RWMutex
	maxSamples int
	stages     map[string]*stageRing
	indicators map[string]int
}

type stageRing struct {
	values   []float64
	next     int
	filled   bool
	last     float64
	outcomes map[string]int
}

func newStageWindow(maxSamples int) *stageWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &stageWindow{
		maxSamples: maxSamples,
		stages:     make(map[string]*stageRing),
		indicators: make(map[string]int),
	}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	ring, ok := w.stages[stage]
	if !ok {
		ring = &stageRing{values: make([]float64, w.maxSamples)}
		w.stages[stage] = ring
	}
	ring.values[ring.next] = ms
	ring.last = ms
	ring.next++
	if ring.next >= len(ring.values) {
		ring.next = 0
		ring.filled = true
	}
}

func (w *stageWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

// ObserveOutcome attributes a chat outcome (an apology, a prompt for input)
// to stage and also counts it as an indicator.
func (w *stageWindow) ObserveOutcome(stage, outcome string) {
	if w == nil {
		return
	}
	stage = strings.TrimSpace(stage)
	outcome = strings.TrimSpace(outcome)
	if stage == "" || outcome == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ring, ok := w.stages[stage]
	if !ok {
		ring = &stageRing{values: make([]float64, w.maxSamples)}
		w.stages[stage] = ring
	}
	if ring.outcomes == nil {
		ring.outcomes = make(map[string]int)
	}
	ring.outcomes[outcome]++
	w.indicators[outcome]++
}

func (w *stageWindow) Snapshot() StageSnapshot {
	if w == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.stages))
	for stage := range w.stages {
		keys = append(keys, stage)
	}
	sort.Strings(keys)

	stages := make([]StageStats, 0, len(keys))
	for _, stage := range keys {
		ring := w.stages[stage]
		n := ring.next
		if ring.filled {
			n = len(ring.values)
		}
		if n == 0 && len(ring.outcomes) == 0 {
			continue
		}
		stages = append(stages, summarize(stage, ring, n))
	}

	names := make([]string, 0, len(w.indicators))
	for name, count := range w.indicators {
		if count > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	indicators := make([]Indicator, 0, len(names))
	for _, name := range names {
		indicators = append(indicators, Indicator{Name: name, Count: w.indicators[name]})
	}

	return StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Stages:      stages,
		Indicators:  indicators,
	}
}

func (w *stageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stages = make(map[string]*stageRing)
	w.indicators = make(map[string]int)
}

func summarize(stage string, ring *stageRing, n int) StageStats {
	st := StageStats{Stage: stage, Samples: n, TargetP95MS: stageTargetP95MS(stage)}
	if len(ring.outcomes) > 0 {
		st.Outcomes = make(map[string]int, len(ring.outcomes))
		for k, v := range ring.outcomes {
			st.Outcomes[k] = v
		}
	}
	if n == 0 {
		return st
	}

	samples := make([]float64, n)
	copy(samples, ring.values[:n])
	sort.Float64s(samples)

	sum := 0.0
	for _, v := range samples {
		sum += v
		if st.TargetP95MS > 0 && v > st.TargetP95MS {
			st.OverTarget++
		}
	}
	st.LastMS = round2(ring.last)
	st.AvgMS = round2(sum / float64(n))
	st.P50MS = round2(quantile(samples, 0.50))
	st.P95MS = round2(quantile(samples, 0.95))
	st.P99MS = round2(quantile(samples, 0.99))
	return st
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func stageTargetP95MS(stage string) float64 {
	switch stage {
	case "retrieval":
		return 300
	case "generation":
		return 2500
	case "turn_total":
		return 3000
	default:
		return 0
	}
}
