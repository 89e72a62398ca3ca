package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/autonews/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	return c
}

func TestOpenHistory(t *testing.T) {
	c := testConfig(t)
	c.Output.DataDir = t.TempDir()

	db := openHistory(c)
	if db == nil {
		t.Fatal("expected history database")
	}
	defer db.Close()

	if db.Path() != filepath.Join(c.Output.DataDir, "autonews.db") {
		t.Errorf("unexpected path %s", db.Path())
	}
}

func TestOpenHistoryDisabled(t *testing.T) {
	c := testConfig(t)
	c.Output.DataDir = t.TempDir()
	c.History.Enabled = false

	if db := openHistory(c); db != nil {
		db.Close()
		t.Error("expected nil when history is disabled")
	}
}

func TestOpenHistoryFailureIsNotFatal(t *testing.T) {
	c := testConfig(t)
	// A regular file where the data directory should be makes Open fail.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}
	c.Output.DataDir = filepath.Join(blocker, "data")

	if db := openHistory(c); db != nil {
		db.Close()
		t.Error("expected nil when the history store cannot be opened")
	}
}
