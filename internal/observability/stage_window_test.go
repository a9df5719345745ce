package observability

import "testing"

func TestStreamStageWindowSnapshot(t *testing.T) {
	w := newStreamStageWindow(8)
	w.Observe("trigger_to_first_chunk", 500)
	w.Observe("trigger_to_first_chunk", 700)
	w.Observe("trigger_to_first_chunk", 900)
	w.ObserveIndicator("empty_retry")
	w.ObserveIndicator("empty_retry")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "trigger_to_first_chunk" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "trigger_to_first_chunk")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
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
	if s.TargetP95MS != 1500 {
		t.Fatalf("TargetP95MS = %.2f, want 1500", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "empty_retry" {
		t.Fatalf("Indicators[0].Name = %q", snap.Indicators[0].Name)
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want 2", snap.Indicators[0].Count)
	}
}

func TestStreamStageWindowWrapsRing(t *testing.T) {
	w := newStreamStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe("stream_total", float64(i*100))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want ring size 4", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.StreamStarted()
	m.StreamEnded()
	m.RecordStream("completed", 0, 1, 0)
	m.ProviderError("anthropic")
	m.StopRequested()
	m.ObserveStreamStage("stream_total", 0)
	m.ObserveStreamIndicator("empty_retry")
	if snap := m.SnapshotStreamStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot has stages: %+v", snap)
	}
}
