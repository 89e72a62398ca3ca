package collect

import (
	"context"
	"errors"
	"log"

	"github.com/TobiSchelling/autonews/internal/config"
)

// ErrSourceUnavailable marks a bucket whose source could not be queried.
var ErrSourceUnavailable = errors.New("headline source unavailable")

// Bucket is one of the fixed news topics.
type Bucket string

const (
	Finance  Bucket = "finance"
	Business Bucket = "business"
	Tech     Bucket = "tech"
)

// Buckets lists every bucket in processing order.
var Buckets = []Bucket{Finance, Business, Tech}

// ParseBucket maps a name to a Bucket.
func ParseBucket(name string) (Bucket, bool) {
	for _, b := range Buckets {
		if string(b) == name {
			return b, true
		}
	}
	return "", false
}

// Article is a fetched headline before rewriting.
type Article struct {
	Title       string
	Description string
	Body        string
	ImageURL    string
	URL         string
	Source      string
}

// Source fetches the articles of one bucket.
type Source interface {
	Fetch(ctx context.Context, bucket Bucket) ([]Article, error)
}

// Result holds the articles of every bucket. A failed bucket has no
// articles and an entry in Errors.
type Result struct {
	Buckets map[Bucket][]Article
	Errors  map[Bucket]error
}

// Total returns the number of articles across all buckets.
func (r *Result) Total() int {
	n := 0
	for _, articles := range r.Buckets {
		n += len(articles)
	}
	return n
}

// Collector queries one source per bucket.
type Collector struct {
	sources map[Bucket]Source
}

// NewCollector creates a collector from configuration. Buckets with a
// configured feed are served by the feed; the rest by NewsAPI.
func NewCollector(cfg *config.Config) *Collector {
	newsCfg := cfg.Sources.NewsAPI
	news := NewNewsAPIClient(newsCfg.BaseURL, cfg.Secrets.NewsAPIKey, newsCfg.Country, newsCfg.PageSize, cfg.Timeout())

	sources := make(map[Bucket]Source, len(Buckets))
	for _, b := range Buckets {
		sources[b] = news
	}

	for name, feedURL := range cfg.Sources.Feeds {
		b, ok := ParseBucket(name)
		if !ok {
			log.Printf("Ignoring feed for unknown bucket %q", name)
			continue
		}
		if feedURL == "" {
			continue
		}
		sources[b] = NewFeedSource(feedURL, newsCfg.PageSize, cfg.Timeout())
	}

	return &Collector{sources: sources}
}

// NewCollectorWithSources creates a collector with explicit sources per bucket.
func NewCollectorWithSources(sources map[Bucket]Source) *Collector {
	return &Collector{sources: sources}
}

// Collect fetches every bucket in order. A failing bucket never aborts the others.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{
		Buckets: make(map[Bucket][]Article, len(Buckets)),
		Errors:  make(map[Bucket]error),
	}

	for _, b := range Buckets {
		src, ok := c.sources[b]
		if !ok || src == nil {
			r.Buckets[b] = nil
			continue
		}

		articles, err := src.Fetch(ctx, b)
		if err != nil {
			log.Printf("Failed to get %s headlines: %v", b, err)
			r.Errors[b] = err
			r.Buckets[b] = nil
			continue
		}
		r.Buckets[b] = articles
		log.Printf("Fetched %d %s articles", len(articles), b)
	}

	return r
}
