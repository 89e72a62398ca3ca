package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/autonews/internal/media"
)

var (
	// ErrMediaUploadFailed marks any failure to store an image on the site.
	ErrMediaUploadFailed = errors.New("media upload failed")
	// ErrPostCreateFailed marks any failure to create a post.
	ErrPostCreateFailed = errors.New("post creation failed")
)

// maxErrorBody caps how much of a failed response is kept for logging.
const maxErrorBody = 2048

var md = goldmark.New()

// MediaRef is the site's handle to an uploaded media item.
type MediaRef struct {
	ID   int64
	Link string
}

// Post is the content submitted to the posts endpoint. MediaID zero means
// no featured image.
type Post struct {
	Title   string
	Content string
	MediaID int64
}

// PostRef identifies a created post.
type PostRef struct {
	ID  int64
	URL string
}

// Options configures a Client.
type Options struct {
	APIBase        string
	SiteID         string
	Token          string
	Status         string
	Categories     []string
	RenderMarkdown bool
	Timeout        time.Duration
}

// Client talks to the WordPress.com REST v1 API of one site.
type Client struct {
	siteURL        string
	token          string
	status         string
	categories     []string
	renderMarkdown bool
	client         *http.Client
}

// NewClient creates a WordPress.com client.
func NewClient(opts Options) *Client {
	status := opts.Status
	if status == "" {
		status = "publish"
	}
	return &Client{
		siteURL:        strings.TrimRight(opts.APIBase, "/") + "/sites/" + opts.SiteID,
		token:          opts.Token,
		status:         status,
		categories:     opts.Categories,
		renderMarkdown: opts.RenderMarkdown,
		client:         &http.Client{Timeout: opts.Timeout},
	}
}

// UploadMedia stores a downloaded image in the site's media library.
func (c *Client) UploadMedia(ctx context.Context, res *media.Resource) (*MediaRef, error) {
	data, err := os.ReadFile(res.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrMediaUploadFailed, res.Path, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media[]"; filename="%s"`, res.Name()))
	header.Set("Content-Type", res.ContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%w: building form: %v", ErrMediaUploadFailed, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%w: building form: %v", ErrMediaUploadFailed, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: building form: %v", ErrMediaUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.siteURL+"/media/new", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrMediaUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUploadFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !isSuccess(resp.StatusCode) {
		log.Printf("WordPress media upload failed: HTTP %d - %s", resp.StatusCode, truncate(body))
		return nil, fmt.Errorf("%w: HTTP %d", ErrMediaUploadFailed, resp.StatusCode)
	}

	var result struct {
		Media []struct {
			ID   int64  `json:"id"`
			Link string `json:"link"`
		} `json:"media"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		log.Printf("Unexpected response from WordPress media upload: %s", truncate(body))
		return nil, fmt.Errorf("%w: decoding response: %v", ErrMediaUploadFailed, err)
	}
	if len(result.Media) == 0 {
		log.Printf("Unexpected response structure from WordPress media upload: %s", truncate(body))
		return nil, fmt.Errorf("%w: empty media list", ErrMediaUploadFailed)
	}
	if result.Media[0].ID == 0 {
		log.Printf("WordPress media upload returned no attachment ID: %s", truncate(body))
		return nil, fmt.Errorf("%w: media entry has no id", ErrMediaUploadFailed)
	}

	ref := &MediaRef{ID: result.Media[0].ID, Link: result.Media[0].Link}
	log.Printf("Uploaded image to WordPress. Attachment ID: %d, Link: %s", ref.ID, ref.Link)
	return ref, nil
}

// CreatePost publishes a post, attaching MediaID as the featured image when set.
func (c *Client) CreatePost(ctx context.Context, p Post) (*PostRef, error) {
	content := p.Content
	if c.renderMarkdown {
		html, err := RenderMarkdown(content)
		if err != nil {
			log.Printf("Markdown rendering failed, posting raw text: %v", err)
		} else {
			content = html
		}
	}

	payload := map[string]any{
		"title":      p.Title,
		"content":    content,
		"status":     c.status,
		"categories": c.categories,
	}
	// WordPress.com v1 names this field featured_image, not featured_media.
	if p.MediaID != 0 {
		payload["featured_image"] = p.MediaID
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling post: %v", ErrPostCreateFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.siteURL+"/posts/new", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrPostCreateFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPostCreateFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !isSuccess(resp.StatusCode) {
		log.Printf("Failed to create post '%s': HTTP %d - %s", p.Title, resp.StatusCode, truncate(body))
		return nil, fmt.Errorf("%w: HTTP %d", ErrPostCreateFailed, resp.StatusCode)
	}

	ref := &PostRef{}
	var result struct {
		ID  int64  `json:"ID"`
		URL string `json:"URL"`
	}
	if err := json.Unmarshal(body, &result); err == nil {
		ref.ID = result.ID
		ref.URL = result.URL
	}

	log.Printf("Post '%s' created successfully!", p.Title)
	return ref, nil
}

// RenderMarkdown converts model output to HTML for the post body.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isSuccess(code int) bool {
	return code == http.StatusOK || code == http.StatusCreated
}

// truncate caps body at maxErrorBody bytes without splitting a rune.
func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
