package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the shortest extracted text accepted as a full body.
const minContentLength = 100

// truncatedMarker matches the "[+1234 chars]" suffix NewsAPI appends to clipped content.
var truncatedMarker = regexp.MustCompile(`\[\+\d+ chars\]\s*$`)

// IsTruncated reports whether a body is missing or was clipped by the headline source.
func IsTruncated(body string) bool {
	return body == "" || truncatedMarker.MatchString(body)
}

// ContentFetcher fetches full article text via HTTP + readability extraction.
type ContentFetcher struct {
	client *http.Client
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(timeout time.Duration) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Enrich returns the full text of articleURL when body is truncated, or
// body unchanged when it is not, has no URL, or extraction fails.
func (f *ContentFetcher) Enrich(ctx context.Context, articleURL, body string) string {
	if articleURL == "" || !IsTruncated(body) {
		return body
	}

	text, err := f.fetchArticleContent(ctx, articleURL)
	if err != nil {
		log.Printf("Could not fetch full text from %s: %v", articleURL, err)
		return body
	}
	if text == "" {
		log.Printf("No extractable content from: %s", articleURL)
		return body
	}
	log.Printf("Fetched full text for %s (%d chars)", articleURL, len(text))
	return text
}

func (f *ContentFetcher) fetchArticleContent(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "autonews/1.0 (news publisher)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extracting content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > minContentLength {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
