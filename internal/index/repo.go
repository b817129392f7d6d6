package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ogfetch/internal/apperr"
)

// Fetch outcomes stored in the status column.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// FetchRow is the latest fetch outcome for one document.
type FetchRow struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Title     string    `json:"title,omitempty"`
	Checksum  string    `json:"checksum"`
	FetchedAt time.Time `json:"fetched_at"`
}

const selectColumns = `path, url, status, error_code, error, title, checksum, fetched_at`

// Record inserts or replaces the outcome for r.Path.
func (db *DB) Record(r FetchRow) error {
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO fetches (path, url, status, error_code, error, title, checksum, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			url        = excluded.url,
			status     = excluded.status,
			error_code = excluded.error_code,
			error      = excluded.error,
			title      = excluded.title,
			checksum   = excluded.checksum,
			fetched_at = excluded.fetched_at
	`, r.Path, r.URL, r.Status, r.ErrorCode, r.Error, r.Title, r.Checksum, r.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: record fetch: %w", err)
	}
	return nil
}

// Get returns the row for path, or apperr.ErrNotFound.
func (db *DB) Get(path string) (*FetchRow, error) {
	row := db.conn.QueryRow(`SELECT `+selectColumns+` FROM fetches WHERE path = ?`, path)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get: %w", err)
	}
	return &r, nil
}

// List returns a page of rows, newest first, optionally filtered by status,
// together with the total count for that filter.
func (db *DB) List(limit, offset int, status string) ([]FetchRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(
		`SELECT count(*) FROM fetches WHERE (? = '' OR status = ?)`, status, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT `+selectColumns+`
		FROM fetches
		WHERE (? = '' OR status = ?)
		ORDER BY fetched_at DESC, path
		LIMIT ? OFFSET ?
	`, status, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list: %w", err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Search matches query against path, url, title and error text.
func (db *DB) Search(query string, limit int) ([]FetchRow, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT `+selectColumns+`
		FROM fetches
		WHERE path LIKE ? OR url LIKE ? OR title LIKE ? OR error LIKE ?
		ORDER BY fetched_at DESC
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collect(rows)
}

// Delete removes the row for path. Deleting an unknown path is not an error.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM fetches WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (FetchRow, error) {
	var r FetchRow
	err := s.Scan(&r.Path, &r.URL, &r.Status, &r.ErrorCode, &r.Error, &r.Title, &r.Checksum, &r.FetchedAt)
	return r, err
}

func collect(rows *sql.Rows) ([]FetchRow, error) {
	defer rows.Close()
	var out []FetchRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
