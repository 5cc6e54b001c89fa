package station

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavebuoy/internal/ingest"
	"wavebuoy/internal/metrics"
	"wavebuoy/internal/sim"
	"wavebuoy/internal/wave"
)

type fakeArchive struct {
	mu   sync.Mutex
	puts int
	err  error
}

func (a *fakeArchive) Put(_ context.Context, _ string, _ time.Time, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts++
	if a.err != nil {
		return "", a.err
	}
	return "id-1", nil
}

type fakeRecorder struct {
	frames int
}

func (r *fakeRecorder) WriteFrame(time.Time, []byte) error {
	r.frames++
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []any
}

func (p *fakePublisher) Publish(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, v)
	return nil
}

type collect struct {
	mu      sync.Mutex
	results []Result
}

func (c *collect) Observe(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func swellRaw(heightM float64) []byte {
	s := sim.Swell{HeightM: heightM, Period: 8 * time.Second, SamplePeriod: 100 * time.Millisecond, Count: 1200, Phase: 0.3}
	return wave.NewDecoder(binary.LittleEndian).Encode(s.Frame(42, 7))
}

func newTestStation(t *testing.T, opts Options) *Station {
	t.Helper()
	a, err := wave.NewAnalyzer(wave.DefaultParams(), nil)
	require.NoError(t, err)
	opts.Analyzer = a
	st, err := New(opts)
	require.NoError(t, err)
	return st
}

func TestHandle_ValidFrame(t *testing.T) {
	arch := &fakeArchive{}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	obs := &collect{}
	st := newTestStation(t, Options{
		Archive: arch, Recorder: rec, Publisher: pub,
		Metrics: metrics.New(), Observers: []Observer{obs},
	})

	at := time.Unix(1700000000, 0).UTC()
	res := st.Handle(context.Background(), ingest.Delivery{Source: "sim", ReceivedAt: at, Raw: swellRaw(2)})

	require.True(t, res.OK(), "error=%s", res.Error)
	assert.Equal(t, "id-1", res.ID)
	assert.Equal(t, "sim", res.Source)
	assert.Equal(t, at, res.ReceivedAt)
	assert.Equal(t, uint32(42), res.Timestamp)
	assert.Equal(t, uint32(7), res.BufferID)
	require.NotNil(t, res.HeightM)
	require.NotNil(t, res.PeriodS)
	require.NotNil(t, res.WavelengthM)
	assert.InDelta(t, 2, *res.HeightM, 0.1)
	assert.InDelta(t, 8, *res.PeriodS, 0.4)
	assert.Empty(t, res.Errors)

	assert.Equal(t, 1, arch.puts)
	assert.Equal(t, 1, rec.frames)
	assert.Len(t, pub.sent, 1)
	assert.Len(t, obs.results, 1)
}

func TestHandle_RejectedFrameIsArchivedButNotPublished(t *testing.T) {
	arch := &fakeArchive{err: errors.New("disk full")}
	pub := &fakePublisher{}
	obs := &collect{}
	st := newTestStation(t, Options{Archive: arch, Publisher: pub, Observers: []Observer{obs}})

	res := st.Handle(context.Background(), ingest.Delivery{Source: "mqtt:x", Raw: []byte{1, 2, 3}})
	assert.False(t, res.OK())
	assert.Equal(t, "format", res.ErrorKind)
	assert.Equal(t, "", res.ID)
	assert.Nil(t, res.HeightM)
	assert.Equal(t, 1, arch.puts)
	assert.Empty(t, pub.sent)
	assert.Len(t, obs.results, 1)
}

func TestEvaluate_NullStatisticsInJSON(t *testing.T) {
	a, err := wave.NewAnalyzer(wave.DefaultParams(), nil)
	require.NoError(t, err)

	// Constant offset: no zero crossings.
	samples := make([]wave.RawSample, 50)
	for i := range samples {
		samples[i] = wave.RawSample{Az: 1.2, My: 1}
	}
	raw := wave.NewDecoder(nil).Encode(wave.NewFrame(1, 100, 2, samples))

	res, err := Evaluate(a, raw, 10, 0)
	require.NoError(t, err)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"height_m", "period_s", "wavelength_m"} {
		v, ok := m[k]
		require.True(t, ok, "missing %s", k)
		assert.Nil(t, v, k)
	}
	assert.Equal(t, "insufficient_data", res.Errors["period"].Kind)
	assert.Equal(t, "insufficient_data", res.Errors["wavelength"].Kind)
	assert.Equal(t, "insufficient_data", res.Errors["height"].Kind)
}

func TestRun_WorkerPoolDrainsChannel(t *testing.T) {
	obs := &collect{}
	st := newTestStation(t, Options{Workers: 3, Observers: []Observer{obs}})

	in := make(chan ingest.Delivery, 10)
	for i := 0; i < 10; i++ {
		in <- ingest.Delivery{Source: "sim", Raw: swellRaw(2)}
	}
	close(in)

	require.NoError(t, st.Run(context.Background(), in))
	assert.Len(t, obs.results, 10)
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := newTestStation(t, Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := st.Run(ctx, make(chan ingest.Delivery))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	a, _ := wave.NewAnalyzer(wave.DefaultParams(), nil)
	_, err = New(Options{Analyzer: a, DepthM: -1})
	assert.ErrorIs(t, err, wave.ErrInvalidDepth)
}
