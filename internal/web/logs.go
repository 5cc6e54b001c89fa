package web

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogLine is one captured log line. Seq increases by one per line for the
// lifetime of the buffer, so clients can poll with ?since=<last seq>.
type LogLine struct {
	Seq       uint64 `json:"seq"`
	Component string `json:"component,omitempty"`
	Text      string `json:"text"`
}

// LogQuery selects lines from a LogBuffer. Zero values match everything.
type LogQuery struct {
	Tail      int
	Since     uint64
	Contains  string
	Component string
}

func (q LogQuery) match(l LogLine) bool {
	if l.Seq <= q.Since {
		return false
	}
	if q.Component != "" && l.Component != q.Component {
		return false
	}
	return q.Contains == "" || strings.Contains(l.Text, q.Contains)
}

// LogBuffer keeps the most recent process log lines in a fixed ring for
// /api/logs. Install it with log.SetOutput(io.MultiWriter(os.Stderr, buf)).
type LogBuffer struct {
	mu      sync.Mutex
	ring    []LogLine
	head    int // index of the oldest line
	n       int
	seq     uint64
	pending []byte
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{ring: make([]LogLine, maxLines)}
}

// Write implements io.Writer. Bytes after the last newline are held until the
// line completes.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.pending, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.push(string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	b.pending = append(b.pending[:0:0], data...)
	return len(p), nil
}

func (b *LogBuffer) push(text string) {
	if text == "" {
		return
	}
	b.seq++
	l := LogLine{Seq: b.seq, Component: logComponent(text), Text: text}
	if b.n < len(b.ring) {
		b.ring[(b.head+b.n)%len(b.ring)] = l
		b.n++
		return
	}
	b.ring[b.head] = l
	b.head = (b.head + 1) % len(b.ring)
}

// logComponent returns the "station" of "2026/01/02 15:04:05 station: ...".
func logComponent(text string) string {
	if len(text) >= 20 && text[4] == '/' && text[7] == '/' && text[13] == ':' && text[19] == ' ' {
		text = text[20:]
	}
	name, _, ok := strings.Cut(text, ": ")
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return ""
	}
	return name
}

// Snapshot returns the newest q.Tail matching lines, oldest first, and the
// number of lines that have fallen out of the ring so far.
func (b *LogBuffer) Snapshot(q LogQuery) (lines []LogLine, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q.Tail <= 0 {
		q.Tail = 200
	}
	dropped = b.seq - uint64(b.n)
	for i := b.n - 1; i >= 0 && len(lines) < q.Tail; i-- {
		l := b.ring[(b.head+i)%len(b.ring)]
		if q.match(l) {
			lines = append(lines, l)
		}
	}
	slices.Reverse(lines)
	return lines, dropped
}

type LogsResponse struct {
	NowUTC  string    `json:"now_utc"`
	Dropped uint64    `json:"dropped"`
	Lines   []LogLine `json:"lines"`
}

// Handler serves GET /api/logs?tail=&since=&contains=&component=&format=text.
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		v := r.URL.Query()
		q := LogQuery{
			Contains:  v.Get("contains"),
			Component: strings.TrimSpace(v.Get("component")),
		}
		if s := strings.TrimSpace(v.Get("tail")); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			q.Tail = n
		}
		if s := strings.TrimSpace(v.Get("since")); s != "" {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				http.Error(w, "since must be a line sequence number", http.StatusBadRequest)
				return
			}
			q.Since = n
		}

		lines, dropped := b.Snapshot(q)
		if strings.EqualFold(v.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, l := range lines {
				_, _ = fmt.Fprintln(w, l.Text)
			}
			return
		}

		if lines == nil {
			lines = []LogLine{}
		}
		writeJSON(w, http.StatusOK, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		})
	})
}
