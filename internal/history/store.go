// Package history keeps a sqlite record of processed documents and their
// pages, used to skip documents that were already cleaned.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver

	"github.com/book-expert/pdf-watermark-remover/internal/model"
)

// ErrPathRequired is returned when no database path is given.
var ErrPathRequired = errors.New("history database path is required")

const (
	defaultDirMode    = 0o750
	defaultRecentRows = 20
	timeLayout        = time.RFC3339Nano
)

// Store is the sqlite-backed document history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), defaultDirMode); mkdirErr != nil {
		return nil, fmt.Errorf("could not create history directory: %w", mkdirErr)
	}

	db, openErr := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if openErr != nil {
		return nil, fmt.Errorf("could not open history database: %w", openErr)
	}

	store := &Store{db: db}

	if schemaErr := store.createSchema(); schemaErr != nil {
		_ = db.Close()

		return nil, fmt.Errorf("could not create history schema: %w", schemaErr)
	}

	return store, nil
}

// Close releases the database connection.
func (store *Store) Close() error {
	return store.db.Close()
}

func (store *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			input_path TEXT NOT NULL,
			input_size INTEGER NOT NULL,
			input_mod_time TEXT NOT NULL,
			output_path TEXT,
			success INTEGER NOT NULL,
			error TEXT,
			total_pages INTEGER NOT NULL,
			cleaned_pages INTEGER NOT NULL,
			blank_pages INTEGER NOT NULL,
			kept_pages INTEGER NOT NULL,
			failed_pages INTEGER NOT NULL,
			final_size INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			started_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_input ON runs(input_path, input_size, input_mod_time)`,
		`CREATE TABLE IF NOT EXISTS pages (
			run_row INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			page_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			source TEXT,
			output TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			PRIMARY KEY (run_row, page_index)
		)`,
	}

	for _, stmt := range statements {
		if _, execErr := store.db.Exec(stmt); execErr != nil {
			return fmt.Errorf("executing schema statement: %w", execErr)
		}
	}

	return nil
}

// RecordDocument stores a document result and its pages in one transaction.
func (store *Store) RecordDocument(ctx context.Context, result model.DocumentResult) error {
	tx, beginErr := store.db.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("could not begin transaction: %w", beginErr)
	}

	insertErr := insertDocument(ctx, tx, result)
	if insertErr != nil {
		return errors.Join(insertErr, tx.Rollback())
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("could not commit history: %w", commitErr)
	}

	return nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, result model.DocumentResult) error {
	res, execErr := tx.ExecContext(ctx,
		`INSERT INTO runs (
			run_id, input_path, input_size, input_mod_time, output_path, success, error,
			total_pages, cleaned_pages, blank_pages, kept_pages, failed_pages,
			final_size, duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.InputPath,
		result.OriginalBytes,
		formatTime(result.InputModTime),
		result.OutputPath,
		result.Success,
		result.Error,
		result.TotalPages,
		result.CleanedPages,
		result.BlankPages,
		result.KeptPages,
		result.FailedPages,
		result.FinalBytes,
		result.Duration.Milliseconds(),
		formatTime(result.StartedAt),
	)
	if execErr != nil {
		return fmt.Errorf("could not insert run: %w", execErr)
	}

	runRow, idErr := res.LastInsertId()
	if idErr != nil {
		return fmt.Errorf("could not read run id: %w", idErr)
	}

	for _, page := range result.Pages {
		_, pageErr := tx.ExecContext(ctx,
			`INSERT INTO pages (run_row, page_index, status, source, output, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runRow,
			page.Index,
			page.Status.String(),
			page.Source,
			page.Output,
			page.Error,
			page.Duration.Milliseconds(),
		)
		if pageErr != nil {
			return fmt.Errorf("could not insert page %d: %w", page.Index, pageErr)
		}
	}

	return nil
}

// Succeeded reports whether the file at inputPath, with this size and
// modification time, has already been cleaned successfully.
func (store *Store) Succeeded(ctx context.Context, inputPath string, size int64, modTime time.Time) (bool, error) {
	var count int

	queryErr := store.db.QueryRowContext(ctx,
		`SELECT count(*) FROM runs
		WHERE input_path = ? AND input_size = ? AND input_mod_time = ? AND success = 1`,
		inputPath, size, formatTime(modTime),
	).Scan(&count)
	if queryErr != nil {
		return false, fmt.Errorf("could not query history: %w", queryErr)
	}

	return count > 0, nil
}

// Recent returns the latest document results, newest first, with their pages.
// A non-positive limit returns the default number of rows.
func (store *Store) Recent(ctx context.Context, limit int) ([]model.DocumentResult, error) {
	if limit <= 0 {
		limit = defaultRecentRows
	}

	rows, queryErr := store.db.QueryContext(ctx,
		`SELECT id, run_id, input_path, input_size, input_mod_time, output_path, success, error,
			total_pages, cleaned_pages, blank_pages, kept_pages, failed_pages,
			final_size, duration_ms, started_at
		FROM runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("could not query history: %w", queryErr)
	}
	defer rows.Close()

	var (
		results []model.DocumentResult
		rowIDs  []int64
	)

	for rows.Next() {
		result, rowID, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		results = append(results, result)
		rowIDs = append(rowIDs, rowID)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("could not read history: %w", rowsErr)
	}

	for i, rowID := range rowIDs {
		pages, pagesErr := store.pages(ctx, rowID)
		if pagesErr != nil {
			return nil, pagesErr
		}

		results[i].Pages = pages
	}

	return results, nil
}

func scanRun(rows *sql.Rows) (model.DocumentResult, int64, error) {
	var (
		result                 model.DocumentResult
		rowID, durationMS      int64
		modTime, startedAt     string
		outputPath, errMessage sql.NullString
	)

	scanErr := rows.Scan(
		&rowID,
		&result.RunID,
		&result.InputPath,
		&result.OriginalBytes,
		&modTime,
		&outputPath,
		&result.Success,
		&errMessage,
		&result.TotalPages,
		&result.CleanedPages,
		&result.BlankPages,
		&result.KeptPages,
		&result.FailedPages,
		&result.FinalBytes,
		&durationMS,
		&startedAt,
	)
	if scanErr != nil {
		return model.DocumentResult{}, 0, fmt.Errorf("could not scan run: %w", scanErr)
	}

	result.OutputPath = outputPath.String
	result.Error = errMessage.String
	result.Duration = time.Duration(durationMS) * time.Millisecond
	result.InputModTime = parseTime(modTime)
	result.StartedAt = parseTime(startedAt)

	return result, rowID, nil
}

func (store *Store) pages(ctx context.Context, runRow int64) ([]model.PageResult, error) {
	rows, queryErr := store.db.QueryContext(ctx,
		`SELECT page_index, status, source, output, error, duration_ms
		FROM pages WHERE run_row = ? ORDER BY page_index`,
		runRow,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("could not query pages: %w", queryErr)
	}
	defer rows.Close()

	var pages []model.PageResult

	for rows.Next() {
		var (
			page                       model.PageResult
			status                     string
			source, output, errMessage sql.NullString
			durationMS                 int64
		)

		if scanErr := rows.Scan(&page.Index, &status, &source, &output, &errMessage, &durationMS); scanErr != nil {
			return nil, fmt.Errorf("could not scan page: %w", scanErr)
		}

		page.Status = model.PageStatus(status)
		page.Source = source.String
		page.Output = output.String
		page.Error = errMessage.String
		page.Duration = time.Duration(durationMS) * time.Millisecond

		pages = append(pages, page)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("could not read pages: %w", rowsErr)
	}

	return pages, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	parsed, parseErr := time.Parse(timeLayout, value)
	if parseErr != nil {
		return time.Time{}
	}

	return parsed
}
