package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pranot/segtrans/internal/jobs"
)

const mediaMetaDefaultTTL = 10 * time.Minute

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// pending migrations. A single connection avoids SQLITE_BUSY contention
// between the queue, the scheduler and the HTTP handlers.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite: %w", err)
		}
	}
	return s.migrate(ctx)
}

// migrate applies embedded migrations in filename order, skipping versions
// already recorded in schema_migrations.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && migrationVersion(entry.Name()) > 0 {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.applyMigration(ctx, name); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, name string) error {
	version := migrationVersion(name)

	var applied int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&applied); err != nil {
		return err
	}
	if applied > 0 {
		return nil
	}

	content, err := migrationFiles.ReadFile(filepath.Join("migrations", name))
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
	return err
}

// migrationVersion extracts the leading integer from a migration filename,
// so "001_init.sql" has version 1. Files without one are ignored.
func migrationVersion(name string) int {
	digits := 0
	for digits < len(name) && name[digits] >= '0' && name[digits] <= '9' {
		digits++
	}
	n, _ := strconv.Atoi(name[:digits])
	return n
}

const jobColumns = `id, source, dedupe_key, media_file, subtitle_file, nfo_file, status, error, created_at, updated_at`

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func scanJob(rows *sql.Rows) (*jobs.Job, error) {
	var job jobs.Job
	var status string
	err := rows.Scan(
		&job.ID,
		&job.Source,
		&job.DedupeKey,
		&job.Payload.MediaFile,
		&job.Payload.SubtitleFile,
		&job.Payload.NFOFile,
		&status,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = jobs.Status(status)
	return &job, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			media_file=excluded.media_file,
			subtitle_file=excluded.subtitle_file,
			nfo_file=excluded.nfo_file,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.MediaFile,
		job.Payload.SubtitleFile,
		job.Payload.NFOFile,
		string(job.Status),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) SaveRunReport(ctx context.Context, report RunReport) error {
	failedJSON, err := json.Marshal(report.FailedSegments)
	if err != nil {
		return err
	}
	createdAt := report.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO run_reports (
			job_id, stage, segments_processed, cache_hits, cheap_count, expensive_count,
			cost_estimate, elapsed_seconds, failed_segments_json, durability_warnings, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.JobID,
		report.Stage,
		report.SegmentsProcessed,
		report.CacheHits,
		report.CheapCount,
		report.ExpensiveCount,
		report.CostEstimate,
		report.ElapsedSeconds,
		string(failedJSON),
		report.DurabilityWarnings,
		createdAt,
	)
	return err
}

func (s *SQLiteStore) ListRunReports(ctx context.Context, jobID string) ([]RunReport, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, stage, segments_processed, cache_hits, cheap_count, expensive_count,
			cost_estimate, elapsed_seconds, failed_segments_json, durability_warnings, created_at
		 FROM run_reports
		 WHERE job_id = ?
		 ORDER BY created_at ASC, id ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]RunReport, 0)
	for rows.Next() {
		var item RunReport
		var failedJSON string
		if err := rows.Scan(
			&item.ID,
			&item.JobID,
			&item.Stage,
			&item.SegmentsProcessed,
			&item.CacheHits,
			&item.CheapCount,
			&item.ExpensiveCount,
			&item.CostEstimate,
			&item.ElapsedSeconds,
			&failedJSON,
			&item.DurabilityWarnings,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(failedJSON), &item.FailedSegments); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

const mediaMetaColumns = `media_path, target_lang, external_langs_json, embedded_langs_json, has_target_external, has_target_embedded, expires_at, updated_at`

// PutMediaMetaCache upserts probe results for one media path and target
// language pair. Zero timestamps get filled in, with the default TTL
// applied when no explicit expiry is set.
func (s *SQLiteStore) PutMediaMetaCache(ctx context.Context, meta MediaMetaCache) error {
	langs, err := encodeLangLists(meta)
	if err != nil {
		return err
	}

	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = time.Now()
	}
	if meta.ExpiresAt.IsZero() {
		meta.ExpiresAt = meta.UpdatedAt.Add(mediaMetaDefaultTTL)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO media_meta_cache (`+mediaMetaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(media_path, target_lang) DO UPDATE SET
			external_langs_json=excluded.external_langs_json,
			embedded_langs_json=excluded.embedded_langs_json,
			has_target_external=excluded.has_target_external,
			has_target_embedded=excluded.has_target_embedded,
			expires_at=excluded.expires_at,
			updated_at=excluded.updated_at`,
		meta.MediaPath,
		meta.TargetLanguage,
		langs.external,
		langs.embedded,
		boolToInt(meta.HasTargetExternal),
		boolToInt(meta.HasTargetEmbedded),
		meta.ExpiresAt.UTC(),
		meta.UpdatedAt.UTC(),
	)
	return err
}

// GetMediaMetaCache returns the cached probe entry, if any, that is
// still live at now. An expired row reads as a miss, not an error.
func (s *SQLiteStore) GetMediaMetaCache(ctx context.Context, mediaPath string, targetLanguage string, now time.Time) (MediaMetaCache, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+mediaMetaColumns+` FROM media_meta_cache
		 WHERE media_path = ? AND target_lang = ? AND expires_at > ?`,
		mediaPath,
		targetLanguage,
		now.UTC(),
	)

	meta, err := scanMediaMeta(row)
	if err == sql.ErrNoRows {
		return MediaMetaCache{}, false, nil
	}
	if err != nil {
		return MediaMetaCache{}, false, err
	}
	return meta, true, nil
}

type langLists struct {
	external string
	embedded string
}

func encodeLangLists(meta MediaMetaCache) (langLists, error) {
	external, err := json.Marshal(meta.ExternalLanguages)
	if err != nil {
		return langLists{}, err
	}
	embedded, err := json.Marshal(meta.EmbeddedLanguages)
	if err != nil {
		return langLists{}, err
	}
	return langLists{external: string(external), embedded: string(embedded)}, nil
}

func scanMediaMeta(row *sql.Row) (MediaMetaCache, error) {
	var (
		meta               MediaMetaCache
		langs              langLists
		targetExternalFlag int
		targetEmbeddedFlag int
	)
	err := row.Scan(
		&meta.MediaPath,
		&meta.TargetLanguage,
		&langs.external,
		&langs.embedded,
		&targetExternalFlag,
		&targetEmbeddedFlag,
		&meta.ExpiresAt,
		&meta.UpdatedAt,
	)
	if err != nil {
		return MediaMetaCache{}, err
	}

	if err := json.Unmarshal([]byte(langs.external), &meta.ExternalLanguages); err != nil {
		return MediaMetaCache{}, err
	}
	if err := json.Unmarshal([]byte(langs.embedded), &meta.EmbeddedLanguages); err != nil {
		return MediaMetaCache{}, err
	}
	meta.HasTargetExternal = targetExternalFlag == 1
	meta.HasTargetEmbedded = targetEmbeddedFlag == 1
	return meta, nil
}

// DeleteExpiredMediaMetaCache drops cache rows already past their expiry.
func (s *SQLiteStore) DeleteExpiredMediaMetaCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_meta_cache WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteJobData removes run reports recorded for a job.
func (s *SQLiteStore) DeleteJobData(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_reports WHERE job_id = ?`, jobID)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
