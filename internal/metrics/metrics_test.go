package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveJob(t *testing.T) {
	before := testutil.ToFloat64(JobsTotal.WithLabelValues("render", "success"))
	beforeDead := testutil.ToFloat64(JobsDeadLettered.WithLabelValues("package"))
	beforeRetry := testutil.ToFloat64(JobRetriesTotal.WithLabelValues("thumbnail"))

	ObserveJob("render", "success", 2*time.Second)
	ObserveJob("package", "dead", time.Second)
	ObserveJob("thumbnail", "retry", time.Second)

	if got := testutil.ToFloat64(JobsTotal.WithLabelValues("render", "success")); got != before+1 {
		t.Errorf("JobsTotal = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(JobsDeadLettered.WithLabelValues("package")); got != beforeDead+1 {
		t.Errorf("JobsDeadLettered = %v, want %v", got, beforeDead+1)
	}
	if got := testutil.ToFloat64(JobRetriesTotal.WithLabelValues("thumbnail")); got != beforeRetry+1 {
		t.Errorf("JobRetriesTotal = %v, want %v", got, beforeRetry+1)
	}
}

func TestObserveEncoderCall(t *testing.T) {
	before := testutil.ToFloat64(EncoderCallsTotal.WithLabelValues("ffprobe", "timeout"))
	ObserveEncoderCall("ffprobe", "timeout", 30*time.Second)

	if got := testutil.ToFloat64(EncoderCallsTotal.WithLabelValues("ffprobe", "timeout")); got != before+1 {
		t.Errorf("EncoderCallsTotal = %v, want %v", got, before+1)
	}
}

func TestObserveRemoval(t *testing.T) {
	beforeOK := testutil.ToFloat64(ReaperRemovalsTotal.WithLabelValues("hls", "success"))
	beforeErr := testutil.ToFloat64(ReaperRemovalsTotal.WithLabelValues("hls", "error"))

	ObserveRemoval("hls", nil)
	ObserveRemoval("hls", errors.New("permission denied"))

	if got := testutil.ToFloat64(ReaperRemovalsTotal.WithLabelValues("hls", "success")); got != beforeOK+1 {
		t.Errorf("success = %v, want %v", got, beforeOK+1)
	}
	if got := testutil.ToFloat64(ReaperRemovalsTotal.WithLabelValues("hls", "error")); got != beforeErr+1 {
		t.Errorf("error = %v, want %v", got, beforeErr+1)
	}
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()
	before := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("remove", "media"))

	obs.ObserveStaleError("remove", "media")
	obs.ObserveOperation("media", "remove", 0.01, errors.New("boom"))

	if got := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("remove", "media")); got != before+1 {
		t.Errorf("FilesystemStaleErrors = %v, want %v", got, before+1)
	}
}

func TestInitializeMetricsExportsSeries(t *testing.T) {
	InitializeMetrics()

	if n := testutil.CollectAndCount(JobsTotal); n < len(jobKinds)*len(jobStatuses) {
		t.Errorf("Expected at least %d job series, got %d", len(jobKinds)*len(jobStatuses), n)
	}
	if n := testutil.CollectAndCount(ReaperRemovalsTotal); n < len(artifacts)*2 {
		t.Errorf("Expected at least %d reaper series, got %d", len(artifacts)*2, n)
	}
}

func TestMetricNamesPrefixed(t *testing.T) {
	InitializeMetrics()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	found := 0
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "media_pipeline_") {
			found++
		}
	}
	if found == 0 {
		t.Error("Expected media_pipeline_ metrics to be registered")
	}
}

type fakeProvider struct{ stats Stats }

func (f fakeProvider) GetStats() Stats { return f.stats }

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(fakeProvider{stats: Stats{
		TotalVideos:  12,
		JobsByStatus: map[string]int{"failed": 3},
		ActiveProcs:  2,
	}}, time.Hour)

	c.collect()

	if got := testutil.ToFloat64(VideosTotal); got != 12 {
		t.Errorf("VideosTotal = %v, want 12", got)
	}
	if got := testutil.ToFloat64(JobRunsByStatus.WithLabelValues("failed")); got != 3 {
		t.Errorf("JobRunsByStatus[failed] = %v, want 3", got)
	}
	if got := testutil.ToFloat64(EncoderProcessesActive); got != 2 {
		t.Errorf("EncoderProcessesActive = %v, want 2", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.collect()
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeProvider{}, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}
