package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, requester_id, link, kind, status, error_message, asset_count, delivered_count, created_at, updated_at`

// CreateJob inserts a new job in StatusSubmitted.
func (s *Store) CreateJob(ctx context.Context, id string, requesterID int64, link string) (*Job, error) {
	timestamp := s.now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, requester_id, link, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		requesterID,
		link,
		StatusSubmitted,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Missing jobs return (nil, nil).
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateStatus records a lifecycle transition.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, timestamp, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireRow(res, id)
}

// SetKind records the resolved reference kind for a job.
func (s *Store) SetKind(ctx context.Context, id, kind string) error {
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET kind = ?, updated_at = ? WHERE id = ?`,
		kind, timestamp, id)
	if err != nil {
		return fmt.Errorf("set kind: %w", err)
	}
	return requireRow(res, id)
}

// SetAssetCount records how many assets the fetch stage produced.
func (s *Store) SetAssetCount(ctx context.Context, id string, count int) error {
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET asset_count = ?, updated_at = ? WHERE id = ?`,
		count, timestamp, id)
	if err != nil {
		return fmt.Errorf("set asset count: %w", err)
	}
	return requireRow(res, id)
}

// FinishJob moves a job to a terminal status. errorMessage is kept only for
// failures; delivered counts only for completions.
func (s *Store) FinishJob(ctx context.Context, id string, status Status, errorMessage string, delivered int) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	if status == StatusCompleted {
		errorMessage = ""
	} else {
		delivered = 0
	}
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, delivered_count = ?, updated_at = ? WHERE id = ?`,
		status, errorMessage, delivered, timestamp, id)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return requireRow(res, id)
}

// RecentJobs returns up to limit jobs, newest first.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// FailStale marks any job stuck in a non-terminal status as failed. Run at
// startup so rows from a crashed process don't look active forever.
func (s *Store) FailStale(ctx context.Context, reason string) (int64, error) {
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
         WHERE status NOT IN (?, ?)`,
		StatusFailed, reason, timestamp, StatusCompleted, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// Stats aggregates job counts and usage counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var stats Stats
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan aggregate: %w", err)
		}
		stats.Total += count
		switch {
		case status == StatusCompleted:
			stats.Completed += count
		case status == StatusFailed:
			stats.Failed += count
		default:
			stats.Active += count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate aggregates: %w", err)
	}

	counters, err := s.Counters(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.Today = counters.Today
	stats.Lifetime = counters.Lifetime
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		createdAt string
		updatedAt string
	)
	if err := row.Scan(
		&job.ID,
		&job.RequesterID,
		&job.Link,
		&job.Kind,
		&job.Status,
		&job.ErrorMessage,
		&job.AssetCount,
		&job.DeliveredCount,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	return &job, nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}
