package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id, startedAt string) Run {
	return Run{
		ID:         id,
		StartedAt:  startedAt,
		FinishedAt: startedAt,
		Fetched:    6,
		Published:  2,
		Skipped:    3,
		Failed:     1,
	}
}

func TestOpenInDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	db, err := OpenInDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()

	if db.Path() != filepath.Join(dir, FileName) {
		t.Errorf("unexpected path %q", db.Path())
	}
}

func TestInsertRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	outcomes := []RunOutcome{
		{Bucket: "business", Index: 1, Title: "Fed Raises Rates", Status: "published", MediaID: 42, PostURL: "https://site/p/1"},
		{Bucket: "tech", Index: 1, Title: "No Image", Status: "skipped_no_image", Reason: "no image url"},
		{Bucket: "tech", Index: 2, Title: "Degraded", Status: "published", MediaID: 43, Degraded: true},
	}
	sourceErrors := []SourceError{{Bucket: "finance", Message: "HTTP 500"}}

	if err := db.InsertRun(sampleRun("run-1", "2026-10-18T07:00:00Z"), outcomes, sourceErrors); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run == nil {
		t.Fatal("expected run")
	}
	if run.Published != 2 || run.Skipped != 3 || run.Failed != 1 || run.Fetched != 6 {
		t.Errorf("unexpected counts %+v", run)
	}

	got, err := db.GetRunOutcomes("run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	if got[0].MediaID != 42 || got[0].PostURL != "https://site/p/1" || got[0].RunID != "run-1" {
		t.Errorf("unexpected first outcome %+v", got[0])
	}
	if got[1].Reason != "no image url" || got[1].MediaID != 0 {
		t.Errorf("unexpected second outcome %+v", got[1])
	}
	if !got[2].Degraded {
		t.Error("expected third outcome to be degraded")
	}

	errs, err := db.GetRunSourceErrors("run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 1 || errs[0].Bucket != "finance" {
		t.Errorf("unexpected source errors %+v", errs)
	}
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Error("expected nil for missing run")
	}
}

func TestInsertRunDuplicateID(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertRun(sampleRun("dup", "2026-10-18T07:00:00Z"), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.InsertRun(sampleRun("dup", "2026-10-18T08:00:00Z"), nil, nil); err == nil {
		t.Error("expected error for duplicate run id")
	}
}

func TestGetRecentRuns(t *testing.T) {
	db := openTestDB(t)
	db.InsertRun(sampleRun("a", "2026-10-16T07:00:00Z"), nil, nil)
	db.InsertRun(sampleRun("b", "2026-10-17T07:00:00Z"), nil, nil)
	db.InsertRun(sampleRun("c", "2026-10-18T07:00:00Z"), nil, nil)

	runs, err := db.GetRecentRuns(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}

	all, _ := db.GetRecentRuns(0)
	if len(all) != 3 {
		t.Errorf("expected 3 runs without limit, got %d", len(all))
	}
}

func TestGetStatsExcludesDryRuns(t *testing.T) {
	db := openTestDB(t)

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Runs != 0 || stats.LastRunAt != "" {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	db.InsertRun(sampleRun("a", "2026-10-17T07:00:00Z"), nil, nil)
	db.InsertRun(sampleRun("b", "2026-10-18T07:00:00Z"), nil, nil)
	dry := sampleRun("c", "2026-10-19T07:00:00Z")
	dry.DryRun = true
	db.InsertRun(dry, nil, nil)

	stats, err = db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Runs != 2 {
		t.Errorf("expected 2 runs, got %d", stats.Runs)
	}
	if stats.Published != 4 || stats.Skipped != 6 || stats.Failed != 2 {
		t.Errorf("unexpected totals %+v", stats)
	}
	if stats.LastRunAt != "2026-10-18T07:00:00Z" {
		t.Errorf("expected last run 2026-10-18T07:00:00Z, got %q", stats.LastRunAt)
	}
}
