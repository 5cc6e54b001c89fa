package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wavebuoy/internal/config"
	"wavebuoy/internal/imu"
	"wavebuoy/internal/ingest"
	"wavebuoy/internal/metrics"
	"wavebuoy/internal/replay"
	"wavebuoy/internal/sim"
	"wavebuoy/internal/station"
	"wavebuoy/internal/store"
	"wavebuoy/internal/udp"
	"wavebuoy/internal/wave"
	"wavebuoy/internal/web"
)

// buoyRuntime owns every long-lived component built from the config.
type buoyRuntime struct {
	cfg   config.Config
	order binary.ByteOrder

	analyzer *wave.Analyzer
	metrics  *metrics.Metrics
	status   *web.Status
	live     *web.LiveBroadcaster
	logs     *web.LogBuffer

	store    *store.Store
	recorder *flushingRecorder
	udp      *udp.Broadcaster

	station *station.Station
	sources []ingest.Source
	imu     *imu.Sensor

	closeOnce sync.Once
}

func newRuntime(cfg config.Config, logs *web.LogBuffer) (*buoyRuntime, error) {
	order, err := wave.ParseByteOrder(cfg.Wave.ByteOrder)
	if err != nil {
		return nil, err
	}
	analyzer, err := wave.NewAnalyzer(cfg.Wave.Params(), order)
	if err != nil {
		return nil, err
	}

	r := &buoyRuntime{
		cfg:      cfg,
		order:    order,
		analyzer: analyzer,
		metrics:  metrics.New(),
		status:   web.NewStatus(),
		logs:     logs,
	}
	r.live = web.NewLiveBroadcaster(r.metrics.SetSubscribers)

	opts := station.Options{
		Analyzer:       analyzer,
		DepthM:         cfg.Wave.DepthM,
		DeclinationDeg: cfg.Wave.DeclinationDeg,
		Workers:        cfg.Station.Workers,
		Metrics:        r.metrics,
		Observers:      []station.Observer{r.status, r.live},
	}

	if cfg.Store.Enable {
		st, err := store.Open(cfg.Store.Path, order)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		r.store = st
		opts.Archive = st
		log.Printf("store: archiving frames to %s", cfg.Store.Path)
	}
	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open capture log: %w", err)
		}
		r.recorder = &flushingRecorder{w: w}
		opts.Recorder = r.recorder
		log.Printf("record: writing capture log %s", cfg.Record.Path)
	}
	if cfg.Publish.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.Publish.UDP.Dest)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("udp publisher: %w", err)
		}
		r.udp = b
		opts.Publisher = b
		log.Printf("udp: publishing results to %s", b.Dest())
	}

	r.station, err = station.New(opts)
	if err != nil {
		r.Close()
		return nil, err
	}

	r.sources, err = buildSources(cfg, order)
	if err != nil {
		r.Close()
		return nil, err
	}
	if c := cfg.Ingest.IMU; c.Enable {
		period := time.Duration(c.SamplePeriodMs) * time.Millisecond
		sensor, err := imu.Open(c.Bus, c.Address, period)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.imu = sensor
		r.sources = append(r.sources, &ingest.IMUSource{Reader: sensor, SamplePeriod: period, Count: c.SampleCount, Order: order})
		log.Printf("imu: ICM-20948 at 0x%02X on %s", c.Address, c.Bus)
	}

	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	info := web.StaticInfo{
		Sources:        names,
		ByteOrder:      cfg.Wave.ByteOrder,
		DepthM:         cfg.Wave.DepthM,
		DeclinationDeg: cfg.Wave.DeclinationDeg,
		Workers:        cfg.Station.Workers,
	}
	if cfg.Store.Enable {
		info.ArchivePath = cfg.Store.Path
	}
	if cfg.Record.Enable {
		info.RecordPath = cfg.Record.Path
	}
	if r.udp != nil {
		info.UDPDest = r.udp.Dest()
	}
	r.status.SetStatic(info)
	return r, nil
}

func buildSources(cfg config.Config, order binary.ByteOrder) ([]ingest.Source, error) {
	in := cfg.Ingest
	var out []ingest.Source
	if in.Serial.Enable {
		out = append(out, ingest.NewSerialSource(in.Serial.Device, in.Serial.Baud, order, in.MaxSamples))
	}
	if in.MQTT.Enable {
		out = append(out, ingest.NewMQTTSource(ingest.MQTTConfig{
			Broker:   in.MQTT.Broker,
			Topic:    in.MQTT.Topic,
			ClientID: in.MQTT.ClientID,
			Username: in.MQTT.Username,
			Password: in.MQTT.Password,
			QoS:      in.MQTT.QoS,
		}))
	}
	if in.Replay.Enable {
		out = append(out, &ingest.ReplaySource{Path: in.Replay.Path, Speed: in.Replay.Speed, Loop: in.Replay.Loop})
	}
	if in.Sim.Enable {
		src := &ingest.SimSource{
			Swell: sim.Swell{
				HeightM:      in.Sim.HeightM,
				Period:       time.Duration(in.Sim.PeriodS * float64(time.Second)),
				SamplePeriod: time.Duration(in.Sim.SamplePeriodMs) * time.Millisecond,
				Count:        in.Sim.SampleCount,
				HeadingDeg:   in.Sim.HeadingDeg,
			},
			Interval: in.Sim.Interval,
			Order:    order,
		}
		if in.Sim.Script != "" {
			script, err := sim.LoadSeaStateScript(in.Sim.Script)
			if err != nil {
				return nil, fmt.Errorf("sim script: %w", err)
			}
			ss, err := sim.NewSeaState(script)
			if err != nil {
				return nil, fmt.Errorf("sim script: %w", err)
			}
			src.SeaState = ss
		}
		out = append(out, src)
	}
	return out, nil
}

// Run blocks until ctx is done, or until every source has finished and the
// station has drained the queue when the web server is disabled.
func (r *buoyRuntime) Run(parent context.Context) error {
	g, ctx := errgroup.WithContext(parent)
	queue := make(chan ingest.Delivery, r.cfg.Station.Queue)

	g.Go(func() error {
		return r.station.Run(ctx, queue)
	})

	g.Go(func() error {
		defer close(queue)
		if len(r.sources) == 0 {
			log.Printf("ingest: no sources enabled")
			return nil
		}
		var wg sync.WaitGroup
		for _, src := range r.sources {
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Printf("ingest: %s started", src.Name())
				err := src.Run(ctx, queue)
				if err != nil && ctx.Err() == nil {
					log.Printf("ingest: %s stopped: %v", src.Name(), err)
					return
				}
				log.Printf("ingest: %s finished", src.Name())
			}()
		}
		wg.Wait()
		return nil
	})

	if r.cfg.Web.Enable {
		deps := web.Deps{
			Status:         r.status,
			Logs:           r.logs,
			Live:           r.live,
			Analyzer:       r.analyzer,
			DepthM:         r.cfg.Wave.DepthM,
			DeclinationDeg: r.cfg.Wave.DeclinationDeg,
			MaxFrameBytes:  r.cfg.Web.MaxFrameBytes,
			Metrics:        r.metrics.Handler(),
		}
		if r.store != nil {
			deps.Frames = r.store
		}
		g.Go(func() error {
			log.Printf("web: listening on %s", r.cfg.Web.Listen)
			return web.Serve(ctx, r.cfg.Web.Listen, deps)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return parent.Err()
}

func (r *buoyRuntime) Close() {
	r.closeOnce.Do(func() {
		for _, s := range r.sources {
			if m, ok := s.(*ingest.MQTTSource); ok && m.Dropped() > 0 {
				log.Printf("ingest: %s dropped %d frames on a full queue", m.Name(), m.Dropped())
			}
		}
		if r.recorder != nil {
			if err := r.recorder.Close(); err != nil {
				log.Printf("record: close: %v", err)
			}
		}
		if r.udp != nil {
			_ = r.udp.Close()
		}
		if r.imu != nil {
			_ = r.imu.Close()
		}
		if r.store != nil {
			if err := r.store.Close(); err != nil {
				log.Printf("store: close: %v", err)
			}
		}
	})
}

// flushingRecorder flushes the capture log after every frame.
type flushingRecorder struct {
	w *replay.Writer
}

func (f *flushingRecorder) WriteFrame(now time.Time, frame []byte) error {
	if err := f.w.WriteFrame(now, frame); err != nil {
		return err
	}
	return f.w.Flush()
}

func (f *flushingRecorder) Close() error { return f.w.Close() }
