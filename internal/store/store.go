// Package store archives raw buoy frames in SQLite so they can be re-analysed
// later with different depth or declination settings. Computed statistics
// are never persisted.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wavebuoy/internal/wave"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("store: frame not found")

// Record is one archived frame. Header fields are nil when Raw is shorter
// than a frame header.
type Record struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
	ByteOrder  string    `json:"byte_order"`

	Timestamp      *uint32 `json:"timestamp"`
	SamplePeriodMs *uint32 `json:"sample_period_ms"`
	SampleCount    *uint32 `json:"sample_count"`
	BufferID       *uint32 `json:"buffer_id"`

	Size int    `json:"size_bytes"`
	Raw  []byte `json:"-"`
}

type Store struct {
	db    *sql.DB
	order binary.ByteOrder
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. order is used to read frame headers for the metadata columns.
func Open(path string, order binary.ByteOrder) (*Store, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store pragmas: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, order: order}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close would close db as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put archives raw and returns the new record ID.
func (s *Store) Put(ctx context.Context, source string, receivedAt time.Time, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("store: empty frame")
	}
	id := uuid.NewString()

	var ts, period, count, buf sql.NullInt64
	if len(raw) >= wave.HeaderSize {
		ts = sql.NullInt64{Int64: int64(s.order.Uint32(raw[0:4])), Valid: true}
		period = sql.NullInt64{Int64: int64(s.order.Uint32(raw[4:8])), Valid: true}
		count = sql.NullInt64{Int64: int64(s.order.Uint32(raw[8:12])), Valid: true}
		buf = sql.NullInt64{Int64: int64(s.order.Uint32(raw[12:16])), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (id, source, received_at_ns, raw, timestamp, sample_period_ms, sample_count, buffer_id, byte_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, source, receivedAt.UnixNano(), raw, ts, period, count, buf, orderName(s.order))
	if err != nil {
		return "", fmt.Errorf("store put: %w", err)
	}
	return id, nil
}

const selectColumns = `id, source, received_at_ns, byte_order, timestamp, sample_period_ms, sample_count, buffer_id, length(raw)`

// Get returns the record with its raw bytes.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`, raw FROM frames WHERE id = ?`, id)
	var r Record
	var meta recordScan
	if err := row.Scan(meta.dest(&r.Raw)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("store get: %w", err)
	}
	raw := r.Raw
	r = meta.record()
	r.Raw = raw
	return r, nil
}

// List returns up to limit records, newest first, without raw bytes.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM frames ORDER BY received_at_ns DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var meta recordScan
		if err := rows.Scan(meta.dest()...); err != nil {
			return nil, fmt.Errorf("store list: %w", err)
		}
		out = append(out, meta.record())
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store count: %w", err)
	}
	return n, nil
}

type recordScan struct {
	id, source, order         string
	receivedNs                int64
	ts, period, count, buffer sql.NullInt64
	size                      int
}

func (m *recordScan) dest(extra ...any) []any {
	return append([]any{&m.id, &m.source, &m.receivedNs, &m.order, &m.ts, &m.period, &m.count, &m.buffer, &m.size}, extra...)
}

func (m *recordScan) record() Record {
	return Record{
		ID:             m.id,
		Source:         m.source,
		ReceivedAt:     time.Unix(0, m.receivedNs).UTC(),
		ByteOrder:      m.order,
		Timestamp:      nullUint32(m.ts),
		SamplePeriodMs: nullUint32(m.period),
		SampleCount:    nullUint32(m.count),
		BufferID:       nullUint32(m.buffer),
		Size:           m.size,
	}
}

func nullUint32(v sql.NullInt64) *uint32 {
	if !v.Valid {
		return nil
	}
	u := uint32(v.Int64)
	return &u
}

func orderName(order binary.ByteOrder) string {
	if order == binary.BigEndian {
		return "big"
	}
	return "little"
}
