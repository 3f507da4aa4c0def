// Package history keeps a local log of recognized tooltips in SQLite.
package history

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/image/draw"
)

// ThumbWidth is the width thumbnails are scaled down to.
const ThumbWidth = 240

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	scanned_at INTEGER NOT NULL,
	text       TEXT NOT NULL,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	width      INTEGER NOT NULL,
	height     INTEGER NOT NULL,
	thumbnail  BLOB
);
CREATE INDEX IF NOT EXISTS scans_scanned_at ON scans(scanned_at);
`

type Entry struct {
	ID        int64
	RequestID string
	ScannedAt time.Time
	Text      string
	X, Y      int
	Width     int
	Height    int
	Thumbnail []byte
}

// Store wraps the SQLite database connection
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite works best with single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Store) Path() string { return s.path }

// Add stores e. The thumbnail is taken from crop when e.Thumbnail is empty.
func (s *Store) Add(ctx context.Context, e Entry, crop image.Image) (int64, error) {
	if e.ScannedAt.IsZero() {
		e.ScannedAt = time.Now()
	}
	if len(e.Thumbnail) == 0 && crop != nil {
		thumb, err := Thumbnail(crop, ThumbWidth)
		if err != nil {
			return 0, err
		}
		e.Thumbnail = thumb
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO scans (request_id, scanned_at, text, x, y, width, height, thumbnail) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.ScannedAt.UnixMilli(), e.Text, e.X, e.Y, e.Width, e.Height, e.Thumbnail)
	if err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, request_id, scanned_at, text, x, y, width, height, thumbnail FROM scans ORDER BY scanned_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.RequestID, &ms, &e.Text, &e.X, &e.Y, &e.Width, &e.Height, &e.Thumbnail); err != nil {
			return nil, err
		}
		e.ScannedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Thumbnail scales img to width (never up) and encodes it as PNG.
func Thumbnail(img image.Image, width int) ([]byte, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	w, h := b.Dx(), b.Dy()
	if w > width {
		h = h * width / w
		if h < 1 {
			h = 1
		}
		w = width
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
