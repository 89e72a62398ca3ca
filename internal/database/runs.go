package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// InsertRun stores a run with its outcomes and source errors in one transaction.
func (db *DB) InsertRun(run Run, outcomes []RunOutcome, sourceErrors []SourceError) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Insert("runs").
		Columns("id", "started_at", "finished_at", "dry_run", "fetched", "published", "skipped", "failed").
		Values(run.ID, run.StartedAt, run.FinishedAt, boolInt(run.DryRun), run.Fetched, run.Published, run.Skipped, run.Failed).
		ToSql()
	if err != nil {
		return fmt.Errorf("building run insert: %w", err)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if len(outcomes) > 0 {
		ins := sq.Insert("run_outcomes").
			Columns("run_id", "bucket", "idx", "title", "status", "reason", "media_id", "post_url", "degraded")
		for _, o := range outcomes {
			ins = ins.Values(run.ID, o.Bucket, o.Index, o.Title, o.Status,
				nullString(o.Reason), nullInt(o.MediaID), nullString(o.PostURL), boolInt(o.Degraded))
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("building outcome insert: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("inserting outcomes: %w", err)
		}
	}

	if len(sourceErrors) > 0 {
		ins := sq.Insert("run_source_errors").Columns("run_id", "bucket", "message")
		for _, e := range sourceErrors {
			ins = ins.Values(run.ID, e.Bucket, e.Message)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("building source error insert: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("inserting source errors: %w", err)
		}
	}

	return tx.Commit()
}

// GetRecentRuns returns the latest runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	q := sq.Select("id", "started_at", "finished_at", "dry_run", "fetched", "published", "skipped", "failed").
		From("runs").
		OrderBy("started_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var dryRun int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &dryRun,
			&r.Fetched, &r.Published, &r.Skipped, &r.Failed); err != nil {
			return nil, err
		}
		r.DryRun = dryRun != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID, or nil if it does not exist.
func (db *DB) GetRun(runID string) (*Run, error) {
	query, args, err := sq.Select("id", "started_at", "finished_at", "dry_run", "fetched", "published", "skipped", "failed").
		From("runs").
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var r Run
	var dryRun int
	err = db.conn.QueryRow(query, args...).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &dryRun,
		&r.Fetched, &r.Published, &r.Skipped, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.DryRun = dryRun != 0
	return &r, nil
}

// GetRunOutcomes returns the outcomes of a run in processing order.
func (db *DB) GetRunOutcomes(runID string) ([]RunOutcome, error) {
	query, args, err := sq.Select("run_id", "bucket", "idx", "title", "status", "reason", "media_id", "post_url", "degraded").
		From("run_outcomes").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []RunOutcome
	for rows.Next() {
		var o RunOutcome
		var reason, postURL sql.NullString
		var mediaID sql.NullInt64
		var degraded int
		if err := rows.Scan(&o.RunID, &o.Bucket, &o.Index, &o.Title, &o.Status,
			&reason, &mediaID, &postURL, &degraded); err != nil {
			return nil, err
		}
		o.Reason = reason.String
		o.MediaID = mediaID.Int64
		o.PostURL = postURL.String
		o.Degraded = degraded != 0
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// GetRunSourceErrors returns the bucket failures recorded for a run.
func (db *DB) GetRunSourceErrors(runID string) ([]SourceError, error) {
	query, args, err := sq.Select("run_id", "bucket", "message").
		From("run_source_errors").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("bucket").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []SourceError
	for rows.Next() {
		var e SourceError
		if err := rows.Scan(&e.RunID, &e.Bucket, &e.Message); err != nil {
			return nil, err
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// GetStats returns totals over all non-dry runs.
func (db *DB) GetStats() (*Stats, error) {
	query, args, err := sq.Select(
		"COUNT(*)",
		"COALESCE(SUM(published), 0)",
		"COALESCE(SUM(skipped), 0)",
		"COALESCE(SUM(failed), 0)",
		"COALESCE(MAX(started_at), '')",
	).
		From("runs").
		Where(sq.Eq{"dry_run": 0}).
		ToSql()
	if err != nil {
		return nil, err
	}

	s := &Stats{}
	if err := db.conn.QueryRow(query, args...).Scan(&s.Runs, &s.Published, &s.Skipped, &s.Failed, &s.LastRunAt); err != nil {
		return nil, err
	}
	return s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
