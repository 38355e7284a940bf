package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vrsandeep/catalog-importer/internal/models"
)

// ErrStatusConflict is returned when a guarded status change finds the
// job in a different state than expected.
var ErrStatusConflict = errors.New("import status conflict")

const importColumns = `id, kind, collection_id, column_mapping, status, progress,
	spreadsheet_key, spreadsheet_name, archive_key, archive_name,
	available_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImport(row rowScanner) (*models.ImportJob, error) {
	var job models.ImportJob
	var collectionID sql.NullInt64
	var mapping, sheetKey, sheetName, archiveKey, archiveName sql.NullString
	err := row.Scan(
		&job.ID, &job.Kind, &collectionID, &mapping, &job.Status, &job.Progress,
		&sheetKey, &sheetName, &archiveKey, &archiveName,
		&job.AvailableAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if collectionID.Valid {
		job.CollectionID = &collectionID.Int64
	}
	if mapping.Valid && mapping.String != "" {
		job.ColumnMapping = []byte(mapping.String)
	}
	job.SpreadsheetKey = sheetKey.String
	job.SpreadsheetName = sheetName.String
	job.ArchiveKey = archiveKey.String
	job.ArchiveName = archiveName.String
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateImport records a new job. Status defaults to Pending and
// AvailableAt to now when unset.
func (s *Store) CreateImport(ctx context.Context, job *models.ImportJob) (int64, error) {
	now := s.now()
	if job.Status == 0 {
		job.Status = models.ImportPending
	}
	if job.Kind == 0 {
		job.Kind = models.KindCatalogUpsert
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	var mapping sql.NullString
	if len(job.ColumnMapping) > 0 {
		mapping = sql.NullString{String: string(job.ColumnMapping), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO imports (kind, collection_id, column_mapping, status, progress,
			spreadsheet_key, spreadsheet_name, archive_key, archive_name,
			available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Kind, job.CollectionID, mapping, job.Status, job.Progress,
		nullString(job.SpreadsheetKey), nullString(job.SpreadsheetName),
		nullString(job.ArchiveKey), nullString(job.ArchiveName),
		job.AvailableAt.UTC(), now, now,
	)
	if err != nil {
		return 0, err
	}
	job.ID, err = res.LastInsertId()
	job.CreatedAt, job.UpdatedAt = now, now
	return job.ID, err
}

func (s *Store) GetImport(ctx context.Context, id int64) (*models.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+importColumns+" FROM imports WHERE id = ?", id)
	job, err := scanImport(row)
	if err != nil {
		return nil, notFound(err, "import", id)
	}
	return job, nil
}

// ListImports returns the most recent jobs first, optionally limited to
// one collection.
func (s *Store) ListImports(ctx context.Context, collectionID *int64, limit int) ([]*models.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + importColumns + " FROM imports"
	var args []any
	if collectionID != nil {
		query += " WHERE collection_id = ?"
		args = append(args, *collectionID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*models.ImportJob{}
	for rows.Next() {
		job, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetImportState moves a job to status `to` with the given progress
// message in one statement, but only while its current status is one of
// `from`. A job in any other state yields ErrStatusConflict.
func (s *Store) SetImportState(ctx context.Context, id int64, from []models.ImportStatus, to models.ImportStatus, progress string) error {
	return s.setImportState(ctx, id, from, to, progress, nil)
}

// RequeueImport moves an Error job back to Pending, not claimable before
// availableAt.
func (s *Store) RequeueImport(ctx context.Context, id int64, availableAt time.Time, progress string) error {
	at := availableAt.UTC()
	return s.setImportState(ctx, id, []models.ImportStatus{models.ImportError}, models.ImportPending, progress, &at)
}

func (s *Store) setImportState(ctx context.Context, id int64, from []models.ImportStatus, to models.ImportStatus, progress string, availableAt *time.Time) error {
	if len(from) == 0 {
		return fmt.Errorf("set import %d state: no source status", id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	query := "UPDATE imports SET status = ?, progress = ?, updated_at = ?"
	args := []any{to, progress, s.now()}
	if availableAt != nil {
		query += ", available_at = ?"
		args = append(args, *availableAt)
	}
	query += " WHERE id = ? AND status IN (" + placeholders + ")"
	args = append(args, id)
	for _, st := range from {
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.conflictOrMissing(ctx, id)
	}
	return nil
}

// UpdateImportProgress rewrites the progress message of a running job.
// Jobs that are not InProgress are left untouched.
func (s *Store) UpdateImportProgress(ctx context.Context, id int64, progress string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE imports SET progress = ?, updated_at = ? WHERE id = ? AND status = ?",
		progress, s.now(), id, models.ImportInProgress)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.conflictOrMissing(ctx, id)
	}
	return nil
}

// ClaimImport moves a specific Pending job to InProgress, ignoring its
// available_at. Used for synchronous runs.
func (s *Store) ClaimImport(ctx context.Context, id int64) (*models.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE imports SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+importColumns,
		models.ImportInProgress, s.now(), id, models.ImportPending)
	job, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.conflictOrMissing(ctx, id)
	}
	return job, err
}

// ClaimNextImport atomically takes the oldest Pending job whose
// available_at has passed. It returns (nil, nil) when nothing is due.
func (s *Store) ClaimNextImport(ctx context.Context) (*models.ImportJob, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE imports SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM imports
			WHERE status = ? AND available_at <= ?
			ORDER BY available_at ASC, id ASC LIMIT 1
		) AND status = ?
		RETURNING `+importColumns,
		models.ImportInProgress, now, models.ImportPending, now, models.ImportPending)
	job, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// FailInterruptedImports moves every InProgress job to Error. Called at
// startup, before any worker runs, for jobs whose process died mid-run.
func (s *Store) FailInterruptedImports(ctx context.Context, progress string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE imports SET status = ?, progress = ?, updated_at = ? WHERE status = ?",
		models.ImportError, progress, s.now(), models.ImportInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FailStaleImports moves InProgress jobs not updated since `before` to
// Error and returns their ids.
func (s *Store) FailStaleImports(ctx context.Context, before time.Time, progress string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE imports SET status = ?, progress = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?
		RETURNING id`,
		models.ImportError, progress, s.now(), models.ImportInProgress, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteImport removes a job that is not currently running.
func (s *Store) DeleteImport(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM imports WHERE id = ? AND status != ?", id, models.ImportInProgress)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.conflictOrMissing(ctx, id)
	}
	return nil
}

func (s *Store) conflictOrMissing(ctx context.Context, id int64) error {
	var status models.ImportStatus
	err := s.db.QueryRowContext(ctx, "SELECT status FROM imports WHERE id = ?", id).Scan(&status)
	if err != nil {
		return notFound(err, "import", id)
	}
	return fmt.Errorf("import %d is %s: %w", id, status.Label(), ErrStatusConflict)
}
