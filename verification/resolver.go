package verification

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	// decoders registered for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/avast/retry-go"
)

// MaxImageBytes caps how much of a single image is read to measure its size
const MaxImageBytes = 25 << 20

var errRetryableStatus = errors.New("retryable status")

var errFileMediaDisabled = errors.New("file media is disabled")

// URIResolver reads images from http(s) URIs, and from file URIs under
// FileRoot. An empty FileRoot rejects every file URI.
type URIResolver struct {
	Client   *http.Client
	Attempts uint
	FileRoot string
}

// NewURIResolver returns a resolver with a bounded http client
func NewURIResolver(fileRoot string) *URIResolver {
	return &URIResolver{
		Client:   &http.Client{Timeout: 8 * time.Second},
		Attempts: 2,
		FileRoot: fileRoot,
	}
}

// Resolve implements ImageResolver
func (r *URIResolver) Resolve(ctx context.Context, uri string) (ImageInfo, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("parse media uri: %w", err)
	}
	switch u.Scheme {
	case "file":
		path, err := r.localPath(u.Path)
		if err != nil {
			return ImageInfo{}, err
		}
		f, err := os.Open(path)
		if err != nil {
			return ImageInfo{}, err
		}
		defer f.Close()
		return inspect(f)
	case "http", "https":
		var info ImageInfo
		err := retry.Do(
			func() error {
				var fetchErr error
				info, fetchErr = r.fetch(ctx, uri)
				return fetchErr
			},
			retry.Context(ctx),
			retry.Attempts(r.Attempts),
			retry.Delay(200*time.Millisecond),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return errors.Is(err, errRetryableStatus)
			}),
		)
		return info, err
	}
	return ImageInfo{}, fmt.Errorf("unsupported media scheme %q", u.Scheme)
}

// localPath resolves symlinks and rejects anything outside FileRoot
func (r *URIResolver) localPath(p string) (string, error) {
	if r.FileRoot == "" {
		return "", errFileMediaDisabled
	}
	root, err := filepath.EvalSymlinks(r.FileRoot)
	if err != nil {
		return "", fmt.Errorf("media root: %w", err)
	}
	real, err := filepath.EvalSymlinks(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("media path %q is outside the media root", p)
	}
	return real, nil
}

func (r *URIResolver) fetch(ctx context.Context, uri string) (ImageInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return ImageInfo{}, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return ImageInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return ImageInfo{}, fmt.Errorf("%w: %d", errRetryableStatus, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return ImageInfo{}, fmt.Errorf("media fetch returned %d", resp.StatusCode)
	}
	return inspect(resp.Body)
}

// countingReader counts bytes read through it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// inspect decodes the image header and drains the rest to measure its size
func inspect(r io.Reader) (ImageInfo, error) {
	cr := &countingReader{r: io.LimitReader(r, MaxImageBytes)}
	cfg, _, err := image.DecodeConfig(cr)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image header: %w", err)
	}
	if _, err := io.Copy(io.Discard, cr); err != nil {
		return ImageInfo{}, err
	}
	return ImageInfo{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Bytes:     cr.n,
		ColorMode: colorMode(cfg.ColorModel),
	}, nil
}

func colorMode(m color.Model) string {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return ColorModeGrayscale
	}
	return ColorModeColor
}
