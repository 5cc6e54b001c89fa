package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wavebuoy/internal/ingest"
	"wavebuoy/internal/wave"
)

type Config struct {
	Wave     WaveConfig     `yaml:"wave"`
	Web      WebConfig      `yaml:"web"`
	Store    StoreConfig    `yaml:"store"`
	Record   RecordConfig   `yaml:"record"`
	Publish  PublishConfig  `yaml:"publish"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Station  StationConfig  `yaml:"station"`
	Redirect RedirectConfig `yaml:"redirect"`
}

type WaveConfig struct {
	// ByteOrder of incoming frames: "little" (default) or "big".
	ByteOrder       string  `yaml:"byte_order"`
	DeclinationDeg  float64 `yaml:"declination_deg"`
	DepthM          float64 `yaml:"depth_m"`
	Gravity         float64 `yaml:"gravity"`
	MinAcceleration float64 `yaml:"min_acceleration"`
	MinWavelengthM  int     `yaml:"min_wavelength_m"`
	MaxWavelengthM  int     `yaml:"max_wavelength_m"`
	MinAccuracyM    float64 `yaml:"min_accuracy_m"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
	// MaxFrameBytes bounds POST /api/analyze bodies.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}

type StoreConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type PublishConfig struct {
	UDP UDPPublishConfig `yaml:"udp"`
}

type UDPPublishConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type IngestConfig struct {
	// MaxSamples bounds the declared sample count on stream transports.
	MaxSamples uint32             `yaml:"max_samples"`
	Serial     SerialIngestConfig `yaml:"serial"`
	MQTT       MQTTIngestConfig   `yaml:"mqtt"`
	Replay     ReplayIngestConfig `yaml:"replay"`
	Sim        SimIngestConfig    `yaml:"sim"`
	IMU        IMUIngestConfig    `yaml:"imu"`
}

type SerialIngestConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type MQTTIngestConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

type ReplayIngestConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type SimIngestConfig struct {
	Enable bool `yaml:"enable"`
	// Script is an optional sea state YAML; without it the fixed swell below is used.
	Script         string        `yaml:"script"`
	HeightM        float64       `yaml:"height_m"`
	PeriodS        float64       `yaml:"period_s"`
	HeadingDeg     float64       `yaml:"heading_deg"`
	SamplePeriodMs uint32        `yaml:"sample_period_ms"`
	SampleCount    int           `yaml:"sample_count"`
	Interval       time.Duration `yaml:"interval"`
}

// IMUIngestConfig reads an ICM-20948 on the buoy itself.
type IMUIngestConfig struct {
	Enable         bool   `yaml:"enable"`
	Bus            string `yaml:"bus"`
	Address        uint16 `yaml:"address"`
	SamplePeriodMs uint32 `yaml:"sample_period_ms"`
	SampleCount    int    `yaml:"sample_count"`
}

type StationConfig struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

type RedirectConfig struct {
	Listen   string `yaml:"listen"`
	Upstream string `yaml:"upstream"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(unknownFieldErrors(te.Errors), "; "))
		}
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func unknownFieldErrors(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		// yaml.v3 prefixes each entry with "line N: ".
		if i := strings.Index(e, ": "); i >= 0 && strings.HasPrefix(e, "line ") {
			e = e[i+2:]
		}
		out = append(out, e)
	}
	return out
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings. It is safe to call on a zero Config.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	w := &cfg.Wave
	if _, err := wave.ParseByteOrder(w.ByteOrder); err != nil {
		return fmt.Errorf("wave.byte_order must be 'little' or 'big'")
	}
	if w.ByteOrder == "" {
		w.ByteOrder = "little"
	}
	if w.DeclinationDeg < -180 || w.DeclinationDeg > 180 {
		return fmt.Errorf("wave.declination_deg must be within [-180, 180]")
	}
	if math.IsNaN(w.DepthM) || math.IsInf(w.DepthM, 0) || w.DepthM < 0 {
		return fmt.Errorf("wave.depth_m must be >= 0")
	}
	if w.Gravity == 0 {
		w.Gravity = wave.DefaultGravity
	}
	if w.Gravity < 0 {
		return fmt.Errorf("wave.gravity must be > 0")
	}
	if w.MinAcceleration == 0 {
		w.MinAcceleration = wave.DefaultMinAcceleration
	}
	if w.MinAcceleration < 0 {
		return fmt.Errorf("wave.min_acceleration must be >= 0")
	}
	if w.MinWavelengthM == 0 {
		w.MinWavelengthM = wave.DefaultMinWavelength
	}
	if w.MaxWavelengthM == 0 {
		w.MaxWavelengthM = wave.DefaultMaxWavelength
	}
	if w.MinWavelengthM < 0 {
		return fmt.Errorf("wave.min_wavelength_m must be > 0")
	}
	if w.MaxWavelengthM < w.MinWavelengthM {
		return fmt.Errorf("wave.max_wavelength_m must be >= wave.min_wavelength_m")
	}
	if w.MinAccuracyM == 0 {
		w.MinAccuracyM = wave.DefaultMinAccuracy
	}
	if w.MinAccuracyM < 0 {
		return fmt.Errorf("wave.min_accuracy_m must be > 0")
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.MaxFrameBytes <= 0 {
		cfg.Web.MaxFrameBytes = 4 << 20
	}

	if cfg.Store.Enable && strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("store.path is required when store.enable is true")
	}
	if cfg.Record.Enable && strings.TrimSpace(cfg.Record.Path) == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}
	if cfg.Publish.UDP.Enable && strings.TrimSpace(cfg.Publish.UDP.Dest) == "" {
		return fmt.Errorf("publish.udp.dest is required when publish.udp.enable is true")
	}

	in := &cfg.Ingest
	if in.MaxSamples == 0 {
		in.MaxSamples = ingest.DefaultMaxSamples
	}
	if in.Serial.Enable {
		if strings.TrimSpace(in.Serial.Device) == "" {
			return fmt.Errorf("ingest.serial.device is required when ingest.serial.enable is true")
		}
		if in.Serial.Baud == 0 {
			in.Serial.Baud = 115200
		}
		if in.Serial.Baud < 0 {
			return fmt.Errorf("ingest.serial.baud must be > 0")
		}
	}
	if in.MQTT.Enable {
		if strings.TrimSpace(in.MQTT.Broker) == "" {
			return fmt.Errorf("ingest.mqtt.broker is required when ingest.mqtt.enable is true")
		}
		if strings.TrimSpace(in.MQTT.Topic) == "" {
			return fmt.Errorf("ingest.mqtt.topic is required when ingest.mqtt.enable is true")
		}
		if in.MQTT.QoS > 2 {
			return fmt.Errorf("ingest.mqtt.qos must be 0, 1 or 2")
		}
		if in.MQTT.ClientID == "" {
			in.MQTT.ClientID = "wavebuoy"
		}
	}
	if in.Replay.Enable {
		if strings.TrimSpace(in.Replay.Path) == "" {
			return fmt.Errorf("ingest.replay.path is required when ingest.replay.enable is true")
		}
		if in.Replay.Speed == 0 {
			in.Replay.Speed = 1
		}
		if in.Replay.Speed < 0 {
			return fmt.Errorf("ingest.replay.speed must be > 0")
		}
	}
	if cfg.Record.Enable && in.Replay.Enable && cfg.Record.Path == in.Replay.Path {
		return fmt.Errorf("record.path and ingest.replay.path must differ")
	}

	// Simulator defaults (safe even if disabled).
	if in.Sim.HeightM == 0 {
		in.Sim.HeightM = 2
	}
	if in.Sim.HeightM < 0 {
		return fmt.Errorf("ingest.sim.height_m must be >= 0")
	}
	if in.Sim.PeriodS <= 0 {
		in.Sim.PeriodS = 8
	}
	if in.Sim.SamplePeriodMs == 0 {
		in.Sim.SamplePeriodMs = 100
	}
	if in.Sim.SampleCount <= 0 {
		in.Sim.SampleCount = 1200
	}
	if in.Sim.Interval <= 0 {
		in.Sim.Interval = 10 * time.Second
	}

	if in.IMU.Enable {
		if strings.TrimSpace(in.IMU.Bus) == "" {
			in.IMU.Bus = "/dev/i2c-1"
		}
		if in.IMU.Address == 0 {
			in.IMU.Address = 0x68
		}
		if in.IMU.Address > 0x7F {
			return fmt.Errorf("ingest.imu.address must be a 7-bit I2C address")
		}
		if in.IMU.SamplePeriodMs == 0 {
			in.IMU.SamplePeriodMs = 100
		}
		if in.IMU.SampleCount <= 0 {
			in.IMU.SampleCount = 1200
		}
		if uint32(in.IMU.SampleCount) > in.MaxSamples {
			return fmt.Errorf("ingest.imu.sample_count must be <= ingest.max_samples")
		}
	}

	if cfg.Station.Workers <= 0 {
		cfg.Station.Workers = 2
	}
	if cfg.Station.Queue <= 0 {
		cfg.Station.Queue = 16
	}

	if cfg.Redirect.Listen == "" {
		cfg.Redirect.Listen = ":8081"
	}

	return nil
}

// Params converts the wave section into pipeline parameters.
func (w WaveConfig) Params() wave.Params {
	return wave.Params{
		Gravity:         w.Gravity,
		MinAcceleration: w.MinAcceleration,
		MinWavelength:   w.MinWavelengthM,
		MaxWavelength:   w.MaxWavelengthM,
		MinAccuracy:     w.MinAccuracyM,
	}
}
