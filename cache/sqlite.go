package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache creates a new SQLite cache with the given database file path
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cache := &SQLiteCache{db: db}
	if err := cache.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return cache, nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS cache (
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		status TEXT NOT NULL,
		headers TEXT NOT NULL,
		body BLOB,
		timestamp DATETIME NOT NULL,
		PRIMARY KEY (method, url)
	);
	`
	_, err := c.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Get(key RequestKey) (*CacheRow, error) {
	query := `
	SELECT method, url, status_code, status, headers, body, timestamp
	FROM cache
	WHERE method = ? AND url = ?
	`
	row, err := scanRow(c.db.QueryRow(query, key.Method, key.URL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found, but not an error
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	return row, nil
}

// Set inserts a CacheRow, replacing any earlier response for the same request.
// Index pages are republished as papers are added, so a stale entry is simply
// overwritten once it has expired.
func (c *SQLiteCache) Set(row CacheRow) error {
	query := `
	INSERT INTO cache (method, url, status_code, status, headers, body, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (method, url) DO UPDATE SET
		status_code = excluded.status_code,
		status = excluded.status,
		headers = excluded.headers,
		body = excluded.body,
		timestamp = excluded.timestamp
	`
	_, err := c.db.Exec(
		query,
		row.Method,
		row.URL,
		row.StatusCode,
		row.Status,
		row.Headers,
		row.Body,
		row.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry for the specified URL and method from SQLite
// Returns nil if the entry was deleted or didn't exist
func (c *SQLiteCache) Delete(key RequestKey) error {
	query := `
	DELETE FROM cache
	WHERE method = ? AND url = ?
	`
	_, err := c.db.Exec(query, key.Method, key.URL)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (c *SQLiteCache) GetAll() ([]CacheRow, error) {
	query := `
	SELECT method, url, status_code, status, headers, body, timestamp
	FROM cache
	ORDER BY timestamp DESC
	`
	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	var result []CacheRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		result = append(result, *row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*CacheRow, error) {
	var row CacheRow
	var timestamp string

	err := s.Scan(
		&row.Method,
		&row.URL,
		&row.StatusCode,
		&row.Status,
		&row.Headers,
		&row.Body,
		&timestamp,
	)
	if err != nil {
		return nil, err
	}

	row.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return &row, nil
}
