package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// JobRecord is the row stored per finished job
type JobRecord struct {
	JobID       string
	RequestName string
	SourceType  string
	Status      string
	Error       string
	ModelSize   string
	LocalDir    string
	GDriveURL   string
	ArchivePath string
	FileCount   int
	FailedCount int
	CreatedAt   time.Time
	CompletedAt time.Time
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite allows one writer; serialize through a single connection
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		request_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		model_size TEXT NOT NULL,
		local_dir TEXT NOT NULL,
		gdrive_url TEXT,
		archive_path TEXT,
		file_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		source TEXT NOT NULL,
		channel TEXT NOT NULL,
		label TEXT,
		format TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		segments INTEGER NOT NULL DEFAULT 0,
		words INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_request_name ON jobs(request_name);
	CREATE INDEX IF NOT EXISTS idx_artifacts_job_id ON artifacts(job_id);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveJob inserts or replaces the row of a job
func (mdb *MetadataDB) SaveJob(rec JobRecord) error {
	query := `
	INSERT INTO jobs (job_id, request_name, source_type, status, error, model_size, local_dir,
		gdrive_url, archive_path, file_count, failed_count, created_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		status = excluded.status,
		error = excluded.error,
		gdrive_url = excluded.gdrive_url,
		archive_path = excluded.archive_path,
		file_count = excluded.file_count,
		failed_count = excluded.failed_count,
		completed_at = excluded.completed_at
	`

	_, err := mdb.db.Exec(query, rec.JobID, rec.RequestName, rec.SourceType, rec.Status,
		rec.Error, rec.ModelSize, rec.LocalDir, rec.GDriveURL, rec.ArchivePath,
		rec.FileCount, rec.FailedCount, rec.CreatedAt, nullTime(rec.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save job metadata: %w", err)
	}
	return nil
}

// SaveArtifacts records every transcript file of one source file
func (mdb *MetadataDB) SaveArtifacts(jobID string, file *types.FileResult) error {
	tx, err := mdb.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO artifacts (job_id, source, channel, label, format, path, segments, words)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare artifact insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range file.Artifacts() {
		if _, err := stmt.Exec(jobID, file.Source, a.Channel, a.Label, a.Format, a.Path, a.Segments, a.Words); err != nil {
			return fmt.Errorf("failed to save artifact %s: %w", a.Path, err)
		}
	}
	return tx.Commit()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

const jobColumns = `job_id, request_name, source_type, status, COALESCE(error, ''), model_size, local_dir,
	COALESCE(gdrive_url, ''), COALESCE(archive_path, ''), file_count, failed_count, created_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (map[string]interface{}, error) {
	var (
		jid, name, source, status, jobErr, model, local, gdrive, archive string
		files, failed                                                    int
		createdAt                                                        time.Time
		completedAt                                                      sql.NullTime
	)
	if err := row.Scan(&jid, &name, &source, &status, &jobErr, &model, &local,
		&gdrive, &archive, &files, &failed, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	job := map[string]interface{}{
		"job_id":       jid,
		"request_name": name,
		"source_type":  source,
		"status":       status,
		"model_size":   model,
		"local_dir":    local,
		"gdrive_url":   gdrive,
		"archive_path": archive,
		"file_count":   files,
		"failed_count": failed,
		"created_at":   createdAt,
	}
	if jobErr != "" {
		job["error"] = jobErr
	}
	if completedAt.Valid {
		job["completed_at"] = completedAt.Time
	}
	return job, nil
}

// GetJob retrieves job metadata by job ID
func (mdb *MetadataDB) GetJob(jobID string) (map[string]interface{}, error) {
	row := mdb.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first
func (mdb *MetadataDB) ListJobs(limit int) ([]map[string]interface{}, error) {
	rows, err := mdb.db.Query(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []map[string]interface{}{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListArtifacts returns the artifacts of a job in insertion order
func (mdb *MetadataDB) ListArtifacts(jobID string) ([]map[string]interface{}, error) {
	rows, err := mdb.db.Query(`
	SELECT source, channel, COALESCE(label, ''), format, path, segments, words
	FROM artifacts WHERE job_id = ? ORDER BY id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []map[string]interface{}{}
	for rows.Next() {
		var (
			source, channel, label, format, path string
			segments, words                      int
		)
		if err := rows.Scan(&source, &channel, &label, &format, &path, &segments, &words); err != nil {
			continue
		}
		artifacts = append(artifacts, map[string]interface{}{
			"source":   source,
			"channel":  channel,
			"label":    label,
			"format":   format,
			"path":     path,
			"segments": segments,
			"words":    words,
		})
	}
	return artifacts, rows.Err()
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
