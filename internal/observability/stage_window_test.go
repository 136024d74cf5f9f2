package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe("generation", 500)
	w.Observe("generation", 700)
	w.Observe("generation", 900)
	w.ObserveIndicator("apology_reply")
	w.ObserveIndicator("apology_reply")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "generation" || s.Samples != 3 {
		t.Fatalf("stage = %+v, want generation with 3 samples", s)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 2500 {
		t.Fatalf("TargetP95MS = %.2f, want 2500", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "apology_reply" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want apology_reply x2", snap.Indicators)
	}
}

func TestStageWindowAttributesOutcomesToStage(t *testing.T) {
	w := newStageWindow(8)
	w.Observe("generation", 1200)
	w.ObserveOutcome("generation", "apology_reply")
	w.ObserveOutcome("generation", "apology_reply")
	w.ObserveOutcome("turn_total", "prompted_for_input")
	w.ObserveOutcome("", "apology_reply")
	w.ObserveOutcome("generation", " ")

	snap := w.Snapshot()
	byStage := map[string]StageStats{}
	for _, s := range snap.Stages {
		byStage[s.Stage] = s
	}
	gen, ok := byStage["generation"]
	if !ok || gen.Samples != 1 || gen.Outcomes["apology_reply"] != 2 {
		t.Fatalf("generation = %+v, want 1 sample and apology_reply x2", gen)
	}
	turn, ok := byStage["turn_total"]
	if !ok || turn.Samples != 0 || turn.Outcomes["prompted_for_input"] != 1 {
		t.Fatalf("turn_total = %+v, want no samples and prompted_for_input x1", turn)
	}
	if turn.P95MS != 0 || turn.TargetP95MS != 3000 {
		t.Fatalf("turn_total latency = %+v, want zero quantiles with 3000ms target", turn)
	}

	counts := map[string]int{}
	for _, ind := range snap.Indicators {
		counts[ind.Name] = ind.Count
	}
	if counts["apology_reply"] != 2 || counts["prompted_for_input"] != 1 {
		t.Fatalf("Indicators = %+v, want apology_reply x2 and prompted_for_input x1", snap.Indicators)
	}

	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("after reset len(Stages) = %d, want 0", got)
	}
}

func TestStageWindowCountsSamplesOverTarget(t *testing.T) {
	w := newStageWindow(8)
	for _, ms := range []float64{100, 250, 301, 900} {
		w.Observe("retrieval", ms)
	}
	w.Observe("custom", 99999)

	for _, s := range w.Snapshot().Stages {
		switch s.Stage {
		case "retrieval":
			if s.OverTarget != 2 {
				t.Fatalf("retrieval OverTarget = %d, want 2", s.OverTarget)
			}
		case "custom":
			if s.OverTarget != 0 {
				t.Fatalf("custom OverTarget = %d, want 0 without a target", s.OverTarget)
			}
		}
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(4)
	for i := 1; i <= 10; i++ {
		w.Observe("retrieval", float64(i))
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", s.Samples)
	}
	if s.AvgMS != 8.5 {
		t.Fatalf("AvgMS = %.2f, want 8.5 (last four samples)", s.AvgMS)
	}
	if s.LastMS != 10 {
		t.Fatalf("LastMS = %.2f, want 10", s.LastMS)
	}
}

func TestStageWindowIgnoresInvalidSamples(t *testing.T) {
	w := newStageWindow(4)
	w.Observe("", 10)
	w.Observe("retrieval", -1)
	w.ObserveIndicator("  ")
	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot = %+v, want empty", snap)
	}
}

func TestMetricsObserveStageFeedsWindow(t *testing.T) {
	m := NewMetrics("test_observability")
	m.ObserveStage("turn_total", 1500*time.Millisecond)
	m.ObserveProviderError("completion", "http_503")
	m.ObserveIndicator("prompted_for_input")

	snap := m.SnapshotStages()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 1500 {
		t.Fatalf("stages = %+v, want one turn_total sample of 1500ms", snap.Stages)
	}

	m.ResetStages()
	if got := len(m.SnapshotStages().Stages); got != 0 {
		t.Fatalf("after reset len(Stages) = %d, want 0", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("retrieval", time.Millisecond)
	m.ObserveProviderError("embedding", "error")
	m.ObserveIndicator("x")
	m.ObserveOutcome("generation", "x")
	m.SetActiveConversations(3)
}

func TestQuantile(t *testing.T) {
	samples := []float64{10, 20, 30, 40, 50}
	if got := quantile(samples, 0.5); got != 30 {
		t.Fatalf("p50 = %v, want 30", got)
	}
	if got := quantile(samples, 0); got != 10 {
		t.Fatalf("p0 = %v, want 10", got)
	}
	if got := quantile(samples, 1); got != 50 {
		t.Fatalf("p100 = %v, want 50", got)
	}
	if got := quantile(samples, 0.25); got != 20 {
		t.Fatalf("p25 = %v, want 20", got)
	}
	if got := quantile(nil, 0.5); got != 0 {
		t.Fatalf("quantile(nil) = %v, want 0", got)
	}
}
