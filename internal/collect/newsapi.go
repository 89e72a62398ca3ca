package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// NewsAPIClient fetches top headlines from NewsAPI.
type NewsAPIClient struct {
	baseURL  string
	apiKey   string
	country  string
	pageSize int
	client   *http.Client
}

// NewNewsAPIClient creates a new NewsAPI client.
func NewNewsAPIClient(baseURL, apiKey, country string, pageSize int, timeout time.Duration) *NewsAPIClient {
	return &NewsAPIClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		country:  country,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

// bucketParams returns the query that selects a bucket's headlines.
func bucketParams(b Bucket) url.Values {
	switch b {
	case Finance:
		return url.Values{"q": {"finance"}}
	case Business:
		return url.Values{"category": {"business"}}
	case Tech:
		return url.Values{"category": {"technology"}}
	}
	return url.Values{}
}

// Fetch returns the top headlines of a bucket.
func (c *NewsAPIClient) Fetch(ctx context.Context, b Bucket) ([]Article, error) {
	params := bucketParams(b)
	params.Set("country", c.country)
	params.Set("pageSize", strconv.Itoa(c.pageSize))
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrSourceUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Content     string `json:"content"`
			URL         string `json:"url"`
			URLToImage  string `json:"urlToImage"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSourceUnavailable, err)
	}

	if result.Status != "" && result.Status != "ok" {
		return nil, fmt.Errorf("%w: status %s: %s", ErrSourceUnavailable, result.Status, result.Message)
	}

	articles := make([]Article, 0, len(result.Articles))
	for _, a := range result.Articles {
		if a.Title == "[Removed]" {
			continue
		}
		articles = append(articles, Article{
			Title:       strings.TrimSpace(a.Title),
			Description: a.Description,
			Body:        a.Content,
			ImageURL:    strings.TrimSpace(a.URLToImage),
			URL:         a.URL,
			Source:      a.Source.Name,
		})
	}

	return articles, nil
}
