package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the station's Prometheus collectors.
type Metrics struct {
	reg *prometheus.Registry

	framesReceived   *prometheus.CounterVec
	framesRejected   *prometheus.CounterVec
	statisticErrors  *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	waveHeight       prometheus.Gauge
	wavePeriod       prometheus.Gauge
	waveLength       prometheus.Gauge
	lastFrame        prometheus.Gauge
	liveSubscribers  prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry, plus the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		framesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavebuoy_frames_received_total",
				Help: "Raw frames received, by transport",
			},
			[]string{"source"},
		),
		framesRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavebuoy_frames_rejected_total",
				Help: "Frames that could not be decoded, by error kind",
			},
			[]string{"kind"},
		),
		statisticErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavebuoy_statistic_errors_total",
				Help: "Statistics that produced no result, by statistic and error kind",
			},
			[]string{"statistic", "kind"},
		),
		analysisDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wavebuoy_analysis_duration_seconds",
				Help:    "Time to decode and analyse one frame",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		waveHeight: f.NewGauge(prometheus.GaugeOpts{
			Name: "wavebuoy_wave_height_meters",
			Help: "Most recent peak-to-peak wave height",
		}),
		wavePeriod: f.NewGauge(prometheus.GaugeOpts{
			Name: "wavebuoy_wave_period_seconds",
			Help: "Most recent dominant wave period",
		}),
		waveLength: f.NewGauge(prometheus.GaugeOpts{
			Name: "wavebuoy_wavelength_meters",
			Help: "Most recent wavelength",
		}),
		lastFrame: f.NewGauge(prometheus.GaugeOpts{
			Name: "wavebuoy_last_frame_timestamp_seconds",
			Help: "Unix time the last frame was analysed",
		}),
		liveSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "wavebuoy_live_subscribers",
			Help: "Connected /api/live clients",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) FrameReceived(source string) {
	m.framesReceived.WithLabelValues(source).Inc()
}

func (m *Metrics) FrameRejected(kind string) {
	m.framesRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) StatisticError(statistic, kind string) {
	m.statisticErrors.WithLabelValues(statistic, kind).Inc()
}

func (m *Metrics) ObserveAnalysis(d time.Duration, at time.Time) {
	m.analysisDuration.Observe(d.Seconds())
	m.lastFrame.Set(float64(at.UnixNano()) / 1e9)
}

func (m *Metrics) SetHeight(v float64)  { m.waveHeight.Set(v) }
func (m *Metrics) SetPeriod(v float64)  { m.wavePeriod.Set(v) }
func (m *Metrics) SetLength(v float64)  { m.waveLength.Set(v) }
func (m *Metrics) SetSubscribers(n int) { m.liveSubscribers.Set(float64(n)) }
