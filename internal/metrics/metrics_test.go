package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndGauges(t *testing.T) {
	m := New()
	m.FrameReceived("sim")
	m.FrameReceived("sim")
	m.FrameReceived("mqtt:buoy")
	m.FrameRejected("format")
	m.StatisticError("wavelength", "out_of_range")
	m.SetHeight(1.5)
	m.SetPeriod(8)
	m.SetLength(99.9)
	m.ObserveAnalysis(2*time.Millisecond, time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(m.framesReceived.WithLabelValues("sim")); got != 2 {
		t.Fatalf("frames_received{sim}=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.framesRejected.WithLabelValues("format")); got != 1 {
		t.Fatalf("frames_rejected{format}=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.statisticErrors.WithLabelValues("wavelength", "out_of_range")); got != 1 {
		t.Fatalf("statistic_errors=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.waveHeight); got != 1.5 {
		t.Fatalf("height=%v want 1.5", got)
	}
	if got := testutil.ToFloat64(m.lastFrame); got != 1700000000 {
		t.Fatalf("last_frame=%v want 1700000000", got)
	}
	if n := testutil.CollectAndCount(m.analysisDuration); n != 1 {
		t.Fatalf("histogram series=%d want 1", n)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FrameReceived("sim")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status=%d want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `wavebuoy_frames_received_total{source="sim"} 1`) {
		t.Fatalf("metrics output missing frames counter:\n%s", body)
	}
}
