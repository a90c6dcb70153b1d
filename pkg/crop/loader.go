package crop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// maxImageBytes bounds a downloaded image.
const maxImageBytes = 64 << 20

// Loader fetches baseline images by URL or from a local image root.
type Loader struct {
	client    *http.Client
	userAgent string
	root      string
	logger    *slog.Logger
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Root resolves relative image paths. Empty disables local files.
	Root      string
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// NewLoader returns a Loader. The timeout defaults to 30 seconds.
func NewLoader(opts LoaderOptions) *Loader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "read-segments/1.0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
		root:      opts.Root,
		logger:    logger,
	}
}

// Load reads source as an http(s) URL or as a path below the image root.
func (l *Loader) Load(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.LoadURL(ctx, source)
	}
	if l.root == "" {
		return nil, fmt.Errorf("crop: local image %q without an image root", source)
	}
	path := filepath.Join(l.root, filepath.Clean("/"+source))
	return LoadFile(path)
}

// LoadURL downloads and decodes an image.
func (l *Loader) LoadURL(ctx context.Context, imageURL string) (image.Image, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %v", err)
	}
	l.logger.Debug("image downloaded", "url", imageURL, "bytes", len(data))
	return Decode(data)
}

// LoadFile opens an image file, falling back to an explicit webp decode.
func LoadFile(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("image: unknown format for %s", path)
	}
	return img, nil
}

// Decode decodes any registered format and then tries webp.
func Decode(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}
