package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

const recordColumns = `id, organization_id, user_id, document_name, document_hash, document_type,
	document_size, status, retry_count, max_retries, next_retry_at, confidence_score,
	confidence_level, analysis_result, processing_options, metadata, cost, current_stage,
	progress, cancel_requested, started_at, completed_at, created_at, updated_at, deleted_at`

// mutableColumns are written by Update and by UpdateStatus when a record is supplied.
const mutableColumns = `confidence_score = ?, confidence_level = ?, analysis_result = ?,
	metadata = ?, error_kind = ?, cost = ?, current_stage = ?, progress = ?,
	next_retry_at = ?, started_at = ?, completed_at = ?`

// live restricts a query to one organization's visible records.
const live = "organization_id = ? AND deleted_at IS NULL"

// Create inserts a new record. Generates an id when the record has none.
func (s *Store) Create(ctx context.Context, record *core.AnalysisRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, record)
	})
}

// Admit checks the organization's limits and inserts the record in one transaction.
func (s *Store) Admit(ctx context.Context, record *core.AnalysisRecord, limits storage.AdmissionLimits) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if limits.MaxConcurrentJobs > 0 {
			var processing int
			err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM analyses WHERE "+live+" AND status = ?",
				record.OrganizationID, core.StatusProcessing).Scan(&processing)
			if err != nil {
				return fmt.Errorf("counting processing jobs: %w", err)
			}
			if processing >= limits.MaxConcurrentJobs {
				return &core.TenantLimitError{
					OrganizationID: record.OrganizationID,
					Limit:          core.LimitConcurrency,
					Current:        float64(processing),
					Max:            float64(limits.MaxConcurrentJobs),
				}
			}
		}
		if limits.DailyCostLimit > 0 {
			spent, err := dailyCost(ctx, tx, record.OrganizationID, record.CreatedAt)
			if err != nil {
				return err
			}
			if spent >= limits.DailyCostLimit {
				return &core.TenantLimitError{
					OrganizationID: record.OrganizationID,
					Limit:          core.LimitDailyCost,
					Current:        spent,
					Max:            limits.DailyCostLimit,
				}
			}
		}
		return s.insert(ctx, tx, record)
	})
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, record *core.AnalysisRecord) error {
	if record.OrganizationID == "" {
		return fmt.Errorf("%w: organization id is required", storage.ErrInvalidQuery)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	if record.Status == "" {
		record.Status = core.StatusPending
	}

	options, err := encodeJSON(record.ProcessingOptions)
	if err != nil {
		return err
	}
	mutable, err := mutableArgs(record)
	if err != nil {
		return err
	}

	args := []any{
		record.ID, record.OrganizationID, record.UserID, record.DocumentName,
		record.DocumentHash, record.DocumentType, record.DocumentSize,
		record.ProcessingOptions.Depth, record.Status, record.RetryCount, record.MaxRetries,
		options, record.CancelRequested, millis(record.CreatedAt), millis(record.UpdatedAt),
	}
	args = append(args, mutable...)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (
			id, organization_id, user_id, document_name, document_hash, document_type,
			document_size, depth, status, retry_count, max_retries,
			processing_options, cancel_requested, created_at, updated_at,
			confidence_score, confidence_level, analysis_result, metadata, error_kind,
			cost, current_stage, progress, next_retry_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: analysis %s", storage.ErrDuplicateKey, record.ID)
	}
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}

	for i := range record.AuditTrail {
		if err := insertAudit(ctx, tx, record.OrganizationID, record.ID, &record.AuditTrail[i], now); err != nil {
			return err
		}
	}
	return nil
}

// mutableArgs returns the values of mutableColumns, in order.
func mutableArgs(record *core.AnalysisRecord) ([]any, error) {
	var result sql.NullString
	if record.AnalysisResult != nil {
		encoded, err := encodeJSON(record.AnalysisResult)
		if err != nil {
			return nil, err
		}
		result = sql.NullString{String: encoded, Valid: true}
	}

	// The call log lives in its own table.
	meta := record.Metadata
	meta.ExternalServiceCalls = nil
	metadata, err := encodeJSON(meta)
	if err != nil {
		return nil, err
	}

	var errorKind core.ErrorKind
	if record.Metadata.ErrorDetails != nil {
		errorKind = record.Metadata.ErrorDetails.Kind
	}

	return []any{
		nullFloat(record.ConfidenceScore), record.ConfidenceLevel, result,
		metadata, errorKind, record.Cost, record.CurrentStage, record.Progress,
		nullMillis(record.NextRetryAt), nullMillis(record.StartedAt), nullMillis(record.CompletedAt),
	}, nil
}

// Get retrieves a record with its audit trail and external call log.
func (s *Store) Get(ctx context.Context, organizationID, id string) (*core.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM analyses WHERE "+live+" AND id = ?",
		organizationID, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if record.AuditTrail, err = s.loadAudit(ctx, organizationID, id); err != nil {
		return nil, err
	}
	if record.Metadata.ExternalServiceCalls, err = s.loadCalls(ctx, organizationID, id); err != nil {
		return nil, err
	}
	return record, nil
}

// Update writes the mutable pipeline fields of a record.
func (s *Store) Update(ctx context.Context, record *core.AnalysisRecord) error {
	args, err := mutableArgs(record)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	args = append(args, millis(now), record.OrganizationID, record.ID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE analyses SET "+mutableColumns+", updated_at = ? WHERE "+live+" AND id = ?",
		args...)
	if err != nil {
		return fmt.Errorf("updating analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: analysis %s", storage.ErrNotFound, record.ID)
	}
	record.UpdatedAt = now
	return nil
}

// UpdateStatus performs a conditional status change and records it in the audit trail.
func (s *Store) UpdateStatus(ctx context.Context, organizationID, id string, from, to core.Status, update storage.StatusUpdate) error {
	if err := core.ValidateTransition(from, to); err != nil {
		return err
	}
	now := s.now().UTC()
	entry := core.AuditEntry{
		At:         now,
		Action:     "status_change",
		FromStatus: from,
		ToStatus:   to,
		Stage:      update.Stage,
		Message:    update.Message,
		Actor:      update.Actor,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := "UPDATE analyses SET status = ?, updated_at = ?"
		args := []any{to, millis(now)}
		if update.Record != nil {
			mutable, err := mutableArgs(update.Record)
			if err != nil {
				return err
			}
			query += ", " + mutableColumns
			args = append(args, mutable...)
		}
		query += " WHERE " + live + " AND id = ? AND status = ?"
		args = append(args, organizationID, id, from)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var current core.Status
			err := tx.QueryRowContext(ctx,
				"SELECT status FROM analyses WHERE "+live+" AND id = ?",
				organizationID, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
			}
			if err != nil {
				return fmt.Errorf("reading status: %w", err)
			}
			return fmt.Errorf("%w: analysis %s is %s, expected %s", storage.ErrStatusConflict, id, current, from)
		}
		return insertAudit(ctx, tx, organizationID, id, &entry, now)
	})
	if err != nil {
		return err
	}

	if update.Record != nil {
		update.Record.Status = to
		update.Record.UpdatedAt = now
		update.Record.AuditTrail = append(update.Record.AuditTrail, entry)
	}
	return nil
}

// RequestCancel sets the cancel flag on a record.
func (s *Store) RequestCancel(ctx context.Context, organizationID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE analyses SET cancel_requested = 1, updated_at = ? WHERE "+live+" AND id = ?",
		millis(s.now()), organizationID, id)
	if err != nil {
		return fmt.Errorf("requesting cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
	}
	return nil
}

// IncrementRetryCount adds one to the retry count, bounded by max_retries.
func (s *Store) IncrementRetryCount(ctx context.Context, organizationID, id string, nextRetryAt *time.Time) (int, error) {
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE analyses SET retry_count = retry_count + 1, next_retry_at = ?, updated_at = ?
			WHERE `+live+` AND id = ? AND retry_count < max_retries`,
			nullMillis(nextRetryAt), millis(s.now()), organizationID, id)
		if err != nil {
			return fmt.Errorf("incrementing retry count: %w", err)
		}
		updated, _ := res.RowsAffected()

		err = tx.QueryRowContext(ctx,
			"SELECT retry_count FROM analyses WHERE "+live+" AND id = ?",
			organizationID, id).Scan(&count)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("reading retry count: %w", err)
		}
		if updated == 0 {
			return fmt.Errorf("%w: analysis %s retried %d times", storage.ErrRetryBudgetExhausted, id, count)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddExternalServiceCall appends to the record's external call log.
func (s *Store) AddExternalServiceCall(ctx context.Context, organizationID, id string, call core.ExternalServiceCall) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.At.IsZero() {
		call.At = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO service_calls (id, analysis_id, organization_id, service, operation,
			status, duration_ms, tokens, cost, error, at)
		SELECT ?, id, organization_id, ?, ?, ?, ?, ?, ?, ?, ?
		FROM analyses WHERE `+live+` AND id = ?`,
		call.ID, call.Service, call.Operation, call.Status, call.Duration.Milliseconds(),
		call.Tokens, call.Cost, call.Error, millis(call.At), organizationID, id)
	if err != nil {
		return fmt.Errorf("recording service call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
	}
	return nil
}

// AddAuditEntry appends to the record's audit trail.
func (s *Store) AddAuditEntry(ctx context.Context, organizationID, id string, entry core.AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertAudit(ctx, tx, organizationID, id, &entry, s.now())
	})
}

func insertAudit(ctx context.Context, q queryer, organizationID, id string, entry *core.AuditEntry, now time.Time) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = now.UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO audit_entries (id, analysis_id, organization_id, at, action,
			from_status, to_status, stage, message, actor)
		SELECT ?, id, organization_id, ?, ?, ?, ?, ?, ?, ?
		FROM analyses WHERE `+live+` AND id = ?`,
		entry.ID, millis(entry.At), entry.Action, entry.FromStatus, entry.ToStatus,
		entry.Stage, entry.Message, entry.Actor, organizationID, id)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
	}
	return nil
}

// SoftDelete hides a record from every query.
func (s *Store) SoftDelete(ctx context.Context, organizationID, id string) error {
	now := millis(s.now())
	res, err := s.db.ExecContext(ctx,
		"UPDATE analyses SET deleted_at = ?, updated_at = ? WHERE "+live+" AND id = ?",
		now, now, organizationID, id)
	if err != nil {
		return fmt.Errorf("deleting analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
	}
	return nil
}

func (s *Store) loadAudit(ctx context.Context, organizationID, id string) ([]core.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, action, from_status, to_status, stage, message, actor
		FROM audit_entries WHERE organization_id = ? AND analysis_id = ? ORDER BY at, rowid`,
		organizationID, id)
	if err != nil {
		return nil, fmt.Errorf("loading audit trail: %w", err)
	}
	defer rows.Close()

	var entries []core.AuditEntry
	for rows.Next() {
		var entry core.AuditEntry
		var at int64
		if err := rows.Scan(&entry.ID, &at, &entry.Action, &entry.FromStatus,
			&entry.ToStatus, &entry.Stage, &entry.Message, &entry.Actor); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entry.At = fromMillis(at)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) loadCalls(ctx context.Context, organizationID, id string) ([]core.ExternalServiceCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, operation, status, duration_ms, tokens, cost, error, at
		FROM service_calls WHERE organization_id = ? AND analysis_id = ? ORDER BY at, rowid`,
		organizationID, id)
	if err != nil {
		return nil, fmt.Errorf("loading service calls: %w", err)
	}
	defer rows.Close()

	var calls []core.ExternalServiceCall
	for rows.Next() {
		var call core.ExternalServiceCall
		var durationMs, at int64
		if err := rows.Scan(&call.ID, &call.Service, &call.Operation, &call.Status,
			&durationMs, &call.Tokens, &call.Cost, &call.Error, &at); err != nil {
			return nil, fmt.Errorf("scanning service call: %w", err)
		}
		call.Duration = time.Duration(durationMs) * time.Millisecond
		call.At = fromMillis(at)
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.AnalysisRecord, error) {
	var (
		r                    core.AnalysisRecord
		nextRetry, started   sql.NullInt64
		completed, deleted   sql.NullInt64
		confidence           sql.NullFloat64
		result               sql.NullString
		options, metadata    string
		cancelRequested      int64
		createdAt, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.OrganizationID, &r.UserID, &r.DocumentName, &r.DocumentHash,
		&r.DocumentType, &r.DocumentSize, &r.Status, &r.RetryCount, &r.MaxRetries, &nextRetry,
		&confidence, &r.ConfidenceLevel, &result, &options, &metadata, &r.Cost, &r.CurrentStage,
		&r.Progress, &cancelRequested, &started, &completed, &createdAt, &updatedAt, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning analysis: %w", err)
	}

	r.NextRetryAt = timePtr(nextRetry)
	r.ConfidenceScore = floatPtr(confidence)
	r.CancelRequested = cancelRequested != 0
	r.StartedAt = timePtr(started)
	r.CompletedAt = timePtr(completed)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	r.DeletedAt = timePtr(deleted)

	if err := decodeJSON(options, &r.ProcessingOptions); err != nil {
		return nil, err
	}
	if err := decodeJSON(metadata, &r.Metadata); err != nil {
		return nil, err
	}
	if result.Valid {
		r.AnalysisResult = &core.StructuredAnalysis{}
		if err := decodeJSON(result.String, r.AnalysisResult); err != nil {
			return nil, err
		}
	}
	return &r, nil
}
