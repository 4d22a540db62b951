package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeTemp int

func (f fakeTemp) Active() int { return int(f) }

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(fakeTemp(3), "openai", "whisper-1"))

	expected := `
# HELP transcribe_api_temp_files_active Temporary audio files currently held by in-flight requests.
# TYPE transcribe_api_temp_files_active gauge
transcribe_api_temp_files_active 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "transcribe_api_temp_files_active"); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(NewCollector(nil, "google", "default")); n != 2 {
		t.Errorf("CollectAndCount = %d, want 2", n)
	}
}

func TestObserveTranscription(t *testing.T) {
	before := testutil.ToFloat64(TranscriptionsTotal.WithLabelValues("test-provider", "ok"))
	ObserveTranscription("test-provider", "ok", 2, 0)
	after := testutil.ToFloat64(TranscriptionsTotal.WithLabelValues("test-provider", "ok"))
	if after-before != 1 {
		t.Errorf("transcriptions_total delta = %v, want 1", after-before)
	}
	if got := testutil.ToFloat64(TranscriptionAttempts.WithLabelValues("test-provider")); got < 2 {
		t.Errorf("attempts = %v, want >= 2", got)
	}
}
