package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrImageFetchFailed marks any failure to download an image.
var ErrImageFetchFailed = errors.New("image fetch failed")

const (
	defaultExt   = ".jpg"
	maxExtLength = 5

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/100.0.4896.60 Safari/537.36"
	browserReferer = "https://www.google.com/"
)

// Resource is a downloaded image held in a temporary file until Release.
type Resource struct {
	Path        string
	ContentType string
	Size        int64

	once sync.Once
}

// Name returns the base file name.
func (r *Resource) Name() string {
	return filepath.Base(r.Path)
}

// Release deletes the temporary file. Only the first call has an effect.
func (r *Resource) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Failed to remove temp file %s: %v", r.Path, err)
		}
	})
}

// ExtFromURL returns the file extension of the URL path, or ".jpg" when it
// is missing or longer than five characters including the dot.
func ExtFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if ext == "" || len(ext) > maxExtLength {
		return defaultExt
	}
	return ext
}

// ContentTypeFor infers a MIME type from a file extension.
func ContentTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// Downloader fetches images into a temporary directory.
type Downloader struct {
	dir    string
	client *http.Client
}

// NewDownloader creates a downloader writing into dir.
func NewDownloader(dir string, timeout time.Duration) *Downloader {
	return &Downloader{
		dir:    dir,
		client: &http.Client{Timeout: timeout},
	}
}

// Download saves the image at imageURL to a uniquely named temporary file.
// The name embeds bucket and index. The caller owns the returned Resource
// and must Release it.
func (d *Downloader) Download(ctx context.Context, imageURL, bucket string, index int) (*Resource, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrImageFetchFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetchFailed, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", browserReferer)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrImageFetchFailed, resp.StatusCode)
	}

	ext := ExtFromURL(imageURL)
	f, err := os.CreateTemp(d.dir, fmt.Sprintf("temp_image_%s_%d_*%s", bucket, index, ext))
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp file: %v", ErrImageFetchFailed, err)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: writing %s: %v", ErrImageFetchFailed, f.Name(), errors.Join(copyErr, closeErr))
	}

	return &Resource{Path: f.Name(), ContentType: ContentTypeFor(ext), Size: n}, nil
}
