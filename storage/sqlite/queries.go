package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// similarSizeTolerance bounds the size difference of similar analyses.
const similarSizeTolerance = 0.2

// terminal matches records no worker will touch again. A FAILED record with
// no retry scheduled failed permanently, whatever budget it has left.
const terminal = `(status IN ('COMPLETED', 'CANCELLED')
	OR (status = 'FAILED' AND (retry_count >= max_retries OR next_retry_at IS NULL)))`

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*core.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var records []*core.AnalysisRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return storage.DefaultPageSize
	}
	return limit
}

// FindPendingAnalyses returns PENDING records due at now, oldest first.
func (s *Store) FindPendingAnalyses(ctx context.Context, organizationID string, now time.Time, limit int) ([]*core.AnalysisRecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM analyses
		WHERE `+live+` AND status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id LIMIT ?`,
		organizationID, core.StatusPending, millis(now), limitOrDefault(limit))
}

// FindFailedAnalyses returns FAILED records with retry budget left.
func (s *Store) FindFailedAnalyses(ctx context.Context, organizationID string, limit int) ([]*core.AnalysisRecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM analyses
		WHERE `+live+` AND status = ? AND retry_count < max_retries
		ORDER BY updated_at, id LIMIT ?`,
		organizationID, core.StatusFailed, limitOrDefault(limit))
}

// FindDueRetries returns FAILED records whose scheduled retry is due at now.
func (s *Store) FindDueRetries(ctx context.Context, organizationID string, now time.Time, limit int) ([]*core.AnalysisRecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM analyses
		WHERE `+live+` AND status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		ORDER BY next_retry_at, id LIMIT ?`,
		organizationID, core.StatusFailed, millis(now), limitOrDefault(limit))
}

// FindActiveByHash returns the oldest in-flight record for a document hash.
func (s *Store) FindActiveByHash(ctx context.Context, organizationID, hash string) (*core.AnalysisRecord, error) {
	records, err := s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM analyses
		WHERE `+live+` AND document_hash = ? AND status IN (?, ?)
		ORDER BY created_at LIMIT 1`,
		organizationID, hash, core.StatusPending, core.StatusProcessing)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no active analysis for hash", storage.ErrNotFound)
	}
	return records[0], nil
}

// FindSimilarAnalyses returns completed records of the same document type
// whose size is within 20% of the given record.
func (s *Store) FindSimilarAnalyses(ctx context.Context, organizationID, id string, limit int) ([]*core.AnalysisRecord, error) {
	var docType core.DocumentType
	var size int64
	err := s.db.QueryRowContext(ctx,
		"SELECT document_type, document_size FROM analyses WHERE "+live+" AND id = ?",
		organizationID, id).Scan(&docType, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: analysis %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading analysis: %w", err)
	}

	low := float64(size) * (1 - similarSizeTolerance)
	high := float64(size) * (1 + similarSizeTolerance)
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM analyses
		WHERE `+live+` AND id != ? AND status = ? AND document_type = ?
			AND document_size >= ? AND document_size <= ?
		ORDER BY confidence_score DESC, created_at DESC LIMIT ?`,
		organizationID, id, core.StatusCompleted, docType, low, high, limitOrDefault(limit))
}

// List returns one page of records matching filter.
func (s *Store) List(ctx context.Context, organizationID string, filter storage.ListFilter) (*storage.Page, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	where := []string{live}
	args := []any{organizationID}
	add := func(clause string, arg ...any) {
		where = append(where, clause)
		args = append(args, arg...)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.Depth != "" {
		add("depth = ?", filter.Depth)
	}
	if filter.ConfidenceLevel != "" {
		add("confidence_level = ?", filter.ConfidenceLevel)
	}
	if filter.DocumentType != "" {
		add("document_type = ?", filter.DocumentType)
	}
	if !filter.CreatedAfter.IsZero() {
		add("created_at >= ?", millis(filter.CreatedAfter))
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < ?", millis(filter.CreatedBefore))
	}
	if filter.MinConfidence != nil {
		add("confidence_score >= ?", *filter.MinConfidence)
	}
	if filter.MaxCost != nil {
		add("cost <= ?", *filter.MaxCost)
	}
	if filter.HasErrors != nil {
		if *filter.HasErrors {
			add("error_kind != ''")
		} else {
			add("error_kind = ''")
		}
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting analyses: %w", err)
	}

	// Column and direction come from the allow-list, never from the caller.
	order := storage.SortFields[filter.SortBy] + " " + strings.ToUpper(filter.SortOrder)
	records, err := s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM analyses WHERE "+clause+" ORDER BY "+order+", id LIMIT ? OFFSET ?",
		append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, err
	}

	return &storage.Page{
		Records:    records,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}, nil
}

// GetStats aggregates the organization's records.
func (s *Store) GetStats(ctx context.Context, organizationID string) (*storage.Stats, error) {
	stats := &storage.Stats{
		ByStatus:          make(map[core.Status]int),
		ByDepth:           make(map[core.AnalysisDepth]int),
		ByDocumentType:    make(map[core.DocumentType]int),
		ByConfidenceLevel: make(map[core.ConfidenceLevel]int),
	}

	var avgMillis sql.NullFloat64
	var withErrors int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(cost), 0),
			AVG(CASE WHEN status = 'COMPLETED' AND started_at IS NOT NULL AND completed_at IS NOT NULL
				THEN completed_at - started_at END),
			COALESCE(SUM(CASE WHEN error_kind != '' THEN 1 ELSE 0 END), 0)
		FROM analyses WHERE `+live, organizationID).Scan(&stats.Total, &stats.TotalCost, &avgMillis, &withErrors)
	if err != nil {
		return nil, fmt.Errorf("aggregating analyses: %w", err)
	}
	if avgMillis.Valid {
		stats.AverageProcessingTime = time.Duration(avgMillis.Float64 * float64(time.Millisecond))
	}

	groups := []struct {
		column string
		put    func(key string, n int)
	}{
		{"status", func(k string, n int) { stats.ByStatus[core.Status(k)] = n }},
		{"depth", func(k string, n int) { stats.ByDepth[core.AnalysisDepth(k)] = n }},
		{"document_type", func(k string, n int) { stats.ByDocumentType[core.DocumentType(k)] = n }},
		{"confidence_level", func(k string, n int) { stats.ByConfidenceLevel[core.ConfidenceLevel(k)] = n }},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, organizationID, g.column, g.put); err != nil {
			return nil, err
		}
	}

	completed := stats.ByStatus[core.StatusCompleted]
	if finished := completed + stats.ByStatus[core.StatusFailed]; finished > 0 {
		stats.SuccessRate = float64(completed) / float64(finished)
	}
	if stats.Total > 0 {
		stats.ErrorRate = float64(withErrors) / float64(stats.Total)
	}
	return stats, nil
}

func (s *Store) countBy(ctx context.Context, organizationID, column string, put func(string, int)) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM analyses WHERE "+live+" AND "+column+" != '' GROUP BY "+column,
		organizationID)
	if err != nil {
		return fmt.Errorf("counting by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("counting by %s: %w", column, err)
		}
		put(key, n)
	}
	return rows.Err()
}

// DailyCost sums the cost of records created on day (UTC), deleted ones included.
func (s *Store) DailyCost(ctx context.Context, organizationID string, day time.Time) (float64, error) {
	return dailyCost(ctx, s.db, organizationID, day)
}

func dailyCost(ctx context.Context, q queryer, organizationID string, day time.Time) (float64, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var spent float64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost), 0) FROM analyses
		WHERE organization_id = ? AND created_at >= ? AND created_at < ?`,
		organizationID, millis(start), millis(end)).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("summing daily cost: %w", err)
	}
	return spent, nil
}

// ListTenants returns the distinct organization ids with live records.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT organization_id FROM analyses WHERE deleted_at IS NULL ORDER BY organization_id")
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("listing tenants: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// PurgeExpired soft-deletes terminal records last updated before cutoff.
func (s *Store) PurgeExpired(ctx context.Context, organizationID string, cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT id FROM analyses WHERE "+live+" AND "+terminal+" AND updated_at < ? ORDER BY updated_at",
			organizationID, millis(cutoff))
		if err != nil {
			return fmt.Errorf("selecting expired analyses: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("selecting expired analyses: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := millis(s.now())
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				"UPDATE analyses SET deleted_at = ? WHERE "+live+" AND id = ?",
				now, organizationID, id); err != nil {
				return fmt.Errorf("purging analysis %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
