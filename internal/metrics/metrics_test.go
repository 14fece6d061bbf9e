package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRunLifecycle(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues("momentum", "completed"))

	RunStarted()
	if got := testutil.ToFloat64(activeRuns); got < 1 {
		t.Errorf("active runs = %v, want at least 1", got)
	}
	RunFinished("momentum", "completed", 20*time.Millisecond)

	if got := testutil.ToFloat64(runsTotal.WithLabelValues("momentum", "completed")); got != before+1 {
		t.Errorf("runs_total = %v, want %v", got, before+1)
	}
}

func TestCounters(t *testing.T) {
	RecordTrade("buy", "signal")
	RecordRejection("max_positions")
	RecordRejection("max_positions")
	RecordIngest("bars", 5)

	if got := testutil.ToFloat64(tradesTotal.WithLabelValues("buy", "signal")); got != 1 {
		t.Errorf("trades_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rejectionsTotal.WithLabelValues("max_positions")); got != 2 {
		t.Errorf("rejections_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ingestRecords.WithLabelValues("bars")); got != 5 {
		t.Errorf("ingest_records_total = %v, want 5", got)
	}
}
