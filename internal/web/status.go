package web

import (
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"wavebuoy/internal/station"
)

// Status tracks station activity for /api/status. All methods are safe for
// concurrent use.
type Status struct {
	startUnixNano int64
	analysed      uint64
	rejected      uint64
	statErrors    uint64
	lastFrameNano int64

	static     atomic.Value // StaticInfo
	lastResult atomic.Value // *station.Result
	lastError  atomic.Value // *station.Result
}

// StaticInfo is configuration that does not change while running.
type StaticInfo struct {
	Sources        []string `json:"sources"`
	ByteOrder      string   `json:"byte_order"`
	DepthM         float64  `json:"depth_m"`
	DeclinationDeg float64  `json:"declination_deg"`
	Workers        int      `json:"workers"`
	ArchivePath    string   `json:"archive_path,omitempty"`
	RecordPath     string   `json:"record_path,omitempty"`
	UDPDest        string   `json:"udp_dest,omitempty"`
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.static.Store(StaticInfo{})
	s.lastResult.Store((*station.Result)(nil))
	s.lastError.Store((*station.Result)(nil))
	return s
}

func (s *Status) SetStatic(info StaticInfo) {
	s.static.Store(info)
}

// Observe implements station.Observer.
func (s *Status) Observe(r station.Result) {
	atomic.StoreInt64(&s.lastFrameNano, time.Now().UTC().UnixNano())
	if !r.OK() {
		atomic.AddUint64(&s.rejected, 1)
		s.lastError.Store(&r)
		return
	}
	atomic.AddUint64(&s.analysed, 1)
	if len(r.Errors) > 0 {
		atomic.AddUint64(&s.statErrors, 1)
	}
	s.lastResult.Store(&r)
}

type DiskSnapshot struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"total_bytes,omitempty"`
	FreeBytes  uint64 `json:"free_bytes,omitempty"`
	AvailBytes uint64 `json:"avail_bytes,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

type BuildSnapshot struct {
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

type StatusSnapshot struct {
	Service       string          `json:"service"`
	NowUTC        string          `json:"now_utc"`
	UptimeSec     int64           `json:"uptime_sec"`
	FramesOK      uint64          `json:"frames_analysed_total"`
	FramesBad     uint64          `json:"frames_rejected_total"`
	PartialFrames uint64          `json:"frames_partial_total"`
	LastFrameUTC  string          `json:"last_frame_utc,omitempty"`
	Static        StaticInfo      `json:"config"`
	LastResult    *station.Result `json:"last_result"`
	LastRejected  *station.Result `json:"last_rejected,omitempty"`
	Disk          *DiskSnapshot   `json:"disk,omitempty"`
	LocalAddrs    []string        `json:"local_addrs,omitempty"`
	Build         BuildSnapshot   `json:"build"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	static := s.static.Load().(StaticInfo)

	snap := StatusSnapshot{
		Service:       "wavebuoy",
		NowUTC:        nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:     int64(nowUTC.Sub(start).Seconds()),
		FramesOK:      atomic.LoadUint64(&s.analysed),
		FramesBad:     atomic.LoadUint64(&s.rejected),
		PartialFrames: atomic.LoadUint64(&s.statErrors),
		Static:        static,
		LastResult:    s.lastResult.Load().(*station.Result),
		LastRejected:  s.lastError.Load().(*station.Result),
		LocalAddrs:    localInterfaceAddrs(),
		Build:         buildSnapshot(),
	}
	if last := atomic.LoadInt64(&s.lastFrameNano); last != 0 {
		snap.LastFrameUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}
	if p := static.ArchivePath; p != "" {
		snap.Disk = diskUsage(filepath.Dir(p))
	} else if p := static.RecordPath; p != "" {
		snap.Disk = diskUsage(filepath.Dir(p))
	}
	return snap
}

func buildSnapshot() BuildSnapshot {
	b := BuildSnapshot{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return b
	}
	b.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Commit = s.Value
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		case "vcs.time":
			b.BuildTime = s.Value
		}
	}
	return b
}
