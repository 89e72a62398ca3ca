package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/autonews/internal/collect"
	"github.com/TobiSchelling/autonews/internal/config"
	"github.com/TobiSchelling/autonews/internal/database"
	"github.com/TobiSchelling/autonews/internal/fetch"
	"github.com/TobiSchelling/autonews/internal/llm"
	"github.com/TobiSchelling/autonews/internal/media"
	"github.com/TobiSchelling/autonews/internal/rewrite"
	"github.com/TobiSchelling/autonews/internal/wordpress"
)

// Status is the terminal state of one article.
type Status string

const (
	StatusPublished             Status = "published"
	StatusSkippedNoImage        Status = "skipped_no_image"
	StatusSkippedRewriteFailed  Status = "skipped_rewrite_failed"
	StatusSkippedDownloadFailed Status = "skipped_download_failed"
	StatusSkippedUploadFailed   Status = "skipped_upload_failed"
	StatusFailed                Status = "failed"

	// StatusWouldPublish is only produced by DryRun.
	StatusWouldPublish Status = "would_publish"
)

// IsSkipped reports whether the article was skipped before publishing.
func (s Status) IsSkipped() bool {
	return strings.HasPrefix(string(s), "skipped_")
}

// Outcome records what happened to one article.
type Outcome struct {
	Bucket   collect.Bucket
	Index    int
	Title    string
	Status   Status
	Reason   string
	Err      error
	MediaID  int64
	PostURL  string
	Degraded bool
}

// Result summarizes a pipeline run.
type Result struct {
	RunID        string
	DryRun       bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Fetched      map[collect.Bucket]int
	SourceErrors map[collect.Bucket]error
	Outcomes     []Outcome
}

// TotalFetched returns the number of articles fetched across all buckets.
func (r *Result) TotalFetched() int {
	n := 0
	for _, c := range r.Fetched {
		n += c
	}
	return n
}

// Count returns how many outcomes ended in status s.
func (r *Result) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r *Result) Published() int { return r.Count(StatusPublished) }

func (r *Result) Failed() int { return r.Count(StatusFailed) }

func (r *Result) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status.IsSkipped() {
			n++
		}
	}
	return n
}

// Headlines supplies the articles for a run.
type Headlines interface {
	Collect(ctx context.Context) *collect.Result
}

// Enricher replaces a truncated body with full text when it can.
type Enricher interface {
	Enrich(ctx context.Context, articleURL, body string) string
}

// Rewriter produces the publishable title and body of an article.
type Rewriter interface {
	Prepare(ctx context.Context, title, description, body string) (rewrite.Article, error)
}

// Downloader stores an article image in a temporary file.
type Downloader interface {
	Download(ctx context.Context, imageURL, bucket string, index int) (*media.Resource, error)
}

// Publisher uploads media and creates posts on the site.
type Publisher interface {
	UploadMedia(ctx context.Context, res *media.Resource) (*wordpress.MediaRef, error)
	CreatePost(ctx context.Context, p wordpress.Post) (*wordpress.PostRef, error)
}

// Recorder persists a finished run.
type Recorder interface {
	InsertRun(run database.Run, outcomes []database.RunOutcome, sourceErrors []database.SourceError) error
}

// Deps are the collaborators of a Pipeline. Enricher and Recorder are optional.
type Deps struct {
	Headlines  Headlines
	Enricher   Enricher
	Rewriter   Rewriter
	Downloader Downloader
	Publisher  Publisher
	Recorder   Recorder
	// OnFailure is the rewrite failure policy; empty means publish_fallback.
	OnFailure string
}

// Pipeline turns headlines into published posts, one article at a time.
type Pipeline struct {
	Deps
}

// New wires the pipeline from configuration. Secrets must already be
// resolved. A nil db disables run history.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	timeout := cfg.Timeout()

	provider := llm.CreateProvider(llm.Options{
		Provider:      cfg.Rewrite.Provider,
		OpenAIModel:   cfg.Rewrite.OpenAIModel,
		OpenAIKey:     cfg.Secrets.OpenAIKey,
		OpenAIBaseURL: cfg.Rewrite.OpenAIBaseURL,
		OllamaModel:   cfg.Rewrite.OllamaModel,
		OllamaURL:     cfg.Rewrite.OllamaURL,
		Timeout:       timeout,
	})

	d := Deps{
		Headlines:  collect.NewCollector(cfg),
		Rewriter:   rewrite.NewRewriter(provider, cfg.Rewrite.Temperature, cfg.Rewrite.MaxTokens),
		Downloader: media.NewDownloader(cfg.GetTempDir(), timeout),
		Publisher: wordpress.NewClient(wordpress.Options{
			APIBase:        cfg.Publish.APIBase,
			SiteID:         cfg.Publish.SiteID,
			Token:          cfg.Secrets.WPToken,
			Status:         cfg.Publish.Status,
			Categories:     cfg.Publish.Categories,
			RenderMarkdown: cfg.Publish.RenderMarkdown,
			Timeout:        timeout,
		}),
		OnFailure: cfg.Rewrite.OnFailure,
	}
	if cfg.Sources.EnrichBody {
		d.Enricher = fetch.NewContentFetcher(timeout)
	}
	if db != nil {
		d.Recorder = db
	}
	return NewWithDeps(d)
}

// NewWithDeps creates a pipeline from explicit collaborators.
func NewWithDeps(d Deps) *Pipeline {
	if d.OnFailure == "" {
		d.OnFailure = config.OnFailurePublishFallback
	}
	return &Pipeline{Deps: d}
}

// Run executes one pass: every bucket in order, every article in fetch order.
// Per-article failures end up in the Result; Run itself never fails.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := p.newResult(false)

	batch := p.collect(ctx, r)
	if batch.Total() == 0 {
		log.Println("No articles found for any category. Exiting.")
		return p.finish(r)
	}

	for _, b := range collect.Buckets {
		for i, a := range batch.Buckets[b] {
			o := p.processArticle(ctx, b, i+1, a)
			r.Outcomes = append(r.Outcomes, o)
		}
	}

	return p.finish(r)
}

// DryRun fetches headlines and reports which articles would be processed.
// It performs no rewrite, download, upload or publish.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := p.newResult(true)

	batch := p.collect(ctx, r)
	for _, b := range collect.Buckets {
		for i, a := range batch.Buckets[b] {
			o := Outcome{Bucket: b, Index: i + 1, Title: rewrite.CleanTitle(titleOrDefault(a.Title))}
			if a.ImageURL == "" {
				o.Status = StatusSkippedNoImage
				o.Reason = "no image url"
			} else {
				o.Status = StatusWouldPublish
			}
			r.Outcomes = append(r.Outcomes, o)
		}
	}

	return p.finish(r)
}

func (p *Pipeline) newResult(dryRun bool) *Result {
	return &Result{
		RunID:        uuid.NewString(),
		DryRun:       dryRun,
		StartedAt:    time.Now().UTC(),
		Fetched:      make(map[collect.Bucket]int, len(collect.Buckets)),
		SourceErrors: make(map[collect.Bucket]error),
	}
}

func (p *Pipeline) collect(ctx context.Context, r *Result) *collect.Result {
	batch := p.Headlines.Collect(ctx)
	for _, b := range collect.Buckets {
		r.Fetched[b] = len(batch.Buckets[b])
	}
	for b, err := range batch.Errors {
		r.SourceErrors[b] = err
	}
	return batch
}

func (p *Pipeline) processArticle(ctx context.Context, b collect.Bucket, index int, a collect.Article) Outcome {
	o := Outcome{Bucket: b, Index: index, Title: titleOrDefault(a.Title)}

	if a.ImageURL == "" {
		log.Printf("No image URL for article '%s'. Skipping.", o.Title)
		o.Status = StatusSkippedNoImage
		o.Reason = "no image url"
		return o
	}

	body := a.Body
	if p.Enricher != nil {
		body = p.Enricher.Enrich(ctx, a.URL, body)
	}

	article, err := p.Rewriter.Prepare(ctx, a.Title, a.Description, body)
	o.Title = article.Title
	o.Degraded = article.Degraded
	if err != nil {
		if p.OnFailure == config.OnFailureSkip {
			log.Printf("Rewrite failed for '%s'. Skipping.", o.Title)
			return terminal(o, StatusSkippedRewriteFailed, err)
		}
		log.Printf("Rewrite failed for '%s'. Publishing fallback text.", o.Title)
	}

	res, err := p.Downloader.Download(ctx, a.ImageURL, string(b), index)
	if err != nil {
		log.Printf("Failed to download image for '%s'. Skipping.", o.Title)
		return terminal(o, StatusSkippedDownloadFailed, err)
	}
	defer res.Release()
	log.Printf("Image downloaded successfully: %s", res.Path)

	ref, err := p.Publisher.UploadMedia(ctx, res)
	if err == nil && (ref == nil || ref.ID == 0) {
		err = fmt.Errorf("%w: no attachment id", wordpress.ErrMediaUploadFailed)
	}
	if err != nil {
		log.Printf("No attachment ID returned for '%s'. Skipping.", o.Title)
		return terminal(o, StatusSkippedUploadFailed, err)
	}
	o.MediaID = ref.ID

	post, err := p.Publisher.CreatePost(ctx, wordpress.Post{
		Title:   article.Title,
		Content: article.Body,
		MediaID: ref.ID,
	})
	if err != nil {
		log.Printf("Could not publish post for '%s' in category '%s'.", o.Title, b)
		return terminal(o, StatusFailed, err)
	}

	o.Status = StatusPublished
	o.PostURL = post.URL
	log.Printf("Successfully published post for '%s' in category '%s'.", o.Title, b)
	return o
}

func terminal(o Outcome, s Status, err error) Outcome {
	o.Status = s
	o.Err = err
	o.Reason = reasonFor(err)
	return o
}

// reasonFor names the failing collaborator for the history log.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, rewrite.ErrRewriteFailed):
		return "rewrite: " + err.Error()
	case errors.Is(err, media.ErrImageFetchFailed):
		return "download: " + err.Error()
	case errors.Is(err, wordpress.ErrMediaUploadFailed):
		return "upload: " + err.Error()
	case errors.Is(err, wordpress.ErrPostCreateFailed):
		return "post: " + err.Error()
	case err != nil:
		return err.Error()
	}
	return ""
}

func (p *Pipeline) finish(r *Result) *Result {
	r.FinishedAt = time.Now().UTC()
	log.Printf("Run %s finished: %d fetched, %d published, %d skipped, %d failed",
		r.RunID, r.TotalFetched(), r.Published(), r.Skipped(), r.Failed())

	if p.Recorder != nil {
		if err := p.record(r); err != nil {
			log.Printf("Failed to record run history: %v", err)
		}
	}
	return r
}

func (p *Pipeline) record(r *Result) error {
	run := database.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
		DryRun:     r.DryRun,
		Fetched:    r.TotalFetched(),
		Published:  r.Published(),
		Skipped:    r.Skipped(),
		Failed:     r.Failed(),
	}

	outcomes := make([]database.RunOutcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		outcomes = append(outcomes, database.RunOutcome{
			Bucket:   string(o.Bucket),
			Index:    o.Index,
			Title:    o.Title,
			Status:   string(o.Status),
			Reason:   o.Reason,
			MediaID:  o.MediaID,
			PostURL:  o.PostURL,
			Degraded: o.Degraded,
		})
	}

	var sourceErrors []database.SourceError
	for _, b := range collect.Buckets {
		if err, ok := r.SourceErrors[b]; ok {
			sourceErrors = append(sourceErrors, database.SourceError{Bucket: string(b), Message: err.Error()})
		}
	}

	if err := p.Recorder.InsertRun(run, outcomes, sourceErrors); err != nil {
		return fmt.Errorf("recording run %s: %w", r.RunID, err)
	}
	return nil
}

func titleOrDefault(title string) string {
	if title == "" {
		return "No Title"
	}
	return title
}
