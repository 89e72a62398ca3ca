package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// FeedSource serves a bucket from an RSS/Atom feed.
type FeedSource struct {
	url    string
	limit  int
	parser *gofeed.Parser
}

// NewFeedSource creates a feed-backed source returning at most limit items.
func NewFeedSource(feedURL string, limit int, timeout time.Duration) *FeedSource {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &FeedSource{url: feedURL, limit: limit, parser: parser}
}

// Fetch parses the feed and returns its first items as articles.
func (f *FeedSource) Fetch(ctx context.Context, _ Bucket) ([]Article, error) {
	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: feed %s: %v", ErrSourceUnavailable, f.url, err)
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = extractSourceName(f.url)
	}

	var articles []Article
	for _, item := range feed.Items {
		if len(articles) >= f.limit {
			break
		}
		if a, ok := parseItem(item, source); ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

func parseItem(item *gofeed.Item, source string) (Article, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Article{}, false
	}

	link := item.Link
	if link == "" {
		link = item.GUID
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	return Article{
		Title:       title,
		Description: htmlText(item.Description),
		Body:        htmlText(body),
		ImageURL:    itemImage(item),
		URL:         link,
		Source:      source,
	}, true
}

// itemImage picks the feed image, then an image enclosure, then the first
// <img> in the item HTML.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	for _, html := range []string{item.Content, item.Description} {
		if src := firstImage(html); src != "" {
			return src
		}
	}
	return ""
}

func firstImage(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

// htmlText reduces an HTML fragment to whitespace-normalized text.
func htmlText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
