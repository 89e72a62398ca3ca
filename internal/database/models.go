package database

// Run is one recorded pipeline run.
type Run struct {
	ID         string
	StartedAt  string
	FinishedAt string
	DryRun     bool
	Fetched    int
	Published  int
	Skipped    int
	Failed     int
}

// RunOutcome is the recorded result of one article within a run.
type RunOutcome struct {
	RunID    string
	Bucket   string
	Index    int
	Title    string
	Status   string
	Reason   string
	MediaID  int64
	PostURL  string
	Degraded bool
}

// SourceError records a bucket whose headline source failed during a run.
type SourceError struct {
	RunID   string
	Bucket  string
	Message string
}

// Stats contains aggregate history statistics.
type Stats struct {
	Runs      int
	Published int
	Skipped   int
	Failed    int
	LastRunAt string
}
