package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"wavebuoy/internal/station"
	"wavebuoy/internal/store"
	"wavebuoy/internal/wave"
)

//go:embed assets/*
var embeddedAssets embed.FS

// FrameStore is the read side of the raw frame archive.
type FrameStore interface {
	List(ctx context.Context, limit int) ([]store.Record, error)
	Get(ctx context.Context, id string) (store.Record, error)
	Count(ctx context.Context) (int, error)
}

type Deps struct {
	Status *Status
	Logs   *LogBuffer
	Live   *LiveBroadcaster

	// Analyzer and the defaults below serve /api/analyze and archived frame
	// re-analysis; depth and declination may be overridden per request.
	Analyzer       *wave.Analyzer
	DepthM         float64
	DeclinationDeg float64
	MaxFrameBytes  int64

	// Optional.
	Frames  FrameStore
	Metrics http.Handler
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	if d.MaxFrameBytes <= 0 {
		d.MaxFrameBytes = 4 << 20
	}
	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		// Should never happen; keep server functional with API only.
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, d.Status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if d.Analyzer == nil {
			http.Error(w, "analyzer unavailable", http.StatusServiceUnavailable)
			return
		}
		depth, decl, err := d.overrides(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.MaxFrameBytes))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				http.Error(w, fmt.Sprintf("frame exceeds %d bytes", tooBig.Limit), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}

		res, err := station.Evaluate(d.Analyzer, raw, depth, decl)
		res.Source = "http"
		res.ReceivedAt = time.Now().UTC()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, res)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/api/frames", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if d.Frames == nil {
			http.Error(w, "archive disabled", http.StatusNotFound)
			return
		}
		limit := 50
		if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 500 {
				http.Error(w, "limit must be an integer in [1,500]", http.StatusBadRequest)
				return
			}
			limit = v
		}
		recs, err := d.Frames.List(r.Context(), limit)
		if err != nil {
			http.Error(w, "list failed", http.StatusInternalServerError)
			return
		}
		total, err := d.Frames.Count(r.Context())
		if err != nil {
			http.Error(w, "count failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Total  int            `json:"total"`
			Frames []store.Record `json:"frames"`
		}{Total: total, Frames: recs})
	})

	mux.HandleFunc("/api/frames/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if d.Frames == nil {
			http.Error(w, "archive disabled", http.StatusNotFound)
			return
		}
		rec, err := d.Frames.Get(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "get failed", http.StatusInternalServerError)
			return
		}

		if strings.EqualFold(r.URL.Query().Get("format"), "raw") {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID+".bin"))
			_, _ = w.Write(rec.Raw)
			return
		}

		depth, decl, err := d.overrides(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := struct {
			Frame  store.Record    `json:"frame"`
			Result *station.Result `json:"result"`
		}{Frame: rec}
		if d.Analyzer != nil {
			res, _ := station.Evaluate(d.Analyzer, rec.Raw, depth, decl)
			res.ID = rec.ID
			res.Source = rec.Source
			res.ReceivedAt = rec.ReceivedAt
			resp.Result = &res
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/live", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if d.Live == nil {
			http.Error(w, "live stream unavailable", http.StatusNotFound)
			return
		}
		serveLive(w, r, d.Live)
	})

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}

	if assetsFS != nil {
		fileServer := http.FileServer(http.FS(assetsFS))
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent stale UI assets during development.
			w.Header().Set("Cache-Control", "no-store")
			fileServer.ServeHTTP(w, r)
		})))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			if path.Dir(r.URL.Path) == "/api" || path.Dir(r.URL.Path) == "/assets" {
				http.NotFound(w, r)
				return
			}
		}

		var b []byte
		var readErr error
		if assetsFS != nil {
			b, readErr = fs.ReadFile(assetsFS, "index.html")
		}
		if assetsFS == nil || readErr != nil {
			// Fallback minimal page if embedding failed.
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>wavebuoy</title></head><body>")
			_, _ = fmt.Fprintf(w, "<h1>wavebuoy</h1><p>Web UI is unavailable. Use <a href=\"/api/status\">/api/status</a>.</p>")
			_, _ = fmt.Fprintf(w, "</body></html>")
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})

	return mux
}

// overrides parses optional depth/declination query parameters.
func (d Deps) overrides(r *http.Request) (depth, decl float64, err error) {
	depth, decl = d.DepthM, d.DeclinationDeg
	q := r.URL.Query()
	if s := strings.TrimSpace(q.Get("depth")); s != "" {
		depth, err = strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(depth) || math.IsInf(depth, 0) || depth < 0 {
			return 0, 0, fmt.Errorf("depth must be a number >= 0")
		}
	}
	if s := strings.TrimSpace(q.Get("declination")); s != "" {
		decl, err = strconv.ParseFloat(s, 64)
		if err != nil || decl < -180 || decl > 180 {
			return 0, 0, fmt.Errorf("declination must be a number in [-180,180]")
		}
	}
	return depth, decl, nil
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func serveLive(w http.ResponseWriter, r *http.Request, live *LiveBroadcaster) {
	rc := http.NewResponseController(w)
	// The server WriteTimeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	id, ch := live.Subscribe(8)
	defer live.Unsubscribe(id)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
		case res, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(res)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: result\ndata: %s\n\n", b); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func Serve(ctx context.Context, listenAddr string, d Deps) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
