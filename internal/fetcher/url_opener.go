package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/genricoloni/mediabridge/internal/domain"
	"go.uber.org/zap"
)

// URLOpener resolves artwork locations reported by players (http, https and
// file URLs) and opens them as byte streams.
type URLOpener struct {
	logger *zap.Logger
	client *http.Client
}

// NewURLOpener creates a new URL-based artwork opener
func NewURLOpener(logger *zap.Logger, cfg domain.Config) *URLOpener {
	return &URLOpener{
		logger: logger,
		client: &http.Client{
			Timeout: cfg.GetArtworkTimeout(),
		},
	}
}

// Resolve returns a reference for location, or nil when there is no usable artwork
func (o *URLOpener) Resolve(location string) domain.ArtworkRef {
	if location == "" {
		return nil
	}

	u, err := url.Parse(location)
	if err != nil {
		o.logger.Debug("Unparseable artwork location", zap.String("location", location), zap.Error(err))
		return nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "file":
		return &urlArtwork{opener: o, location: location}
	default:
		o.logger.Debug("Unsupported artwork scheme", zap.String("scheme", u.Scheme))
		return nil
	}
}

// Open returns a stream over the artwork at location. The caller closes it.
func (o *URLOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid artwork location: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open artwork file: %w", err)
		}
		return f, nil
	case "http", "https":
		return o.openHTTP(ctx, location)
	default:
		return nil, fmt.Errorf("unsupported artwork scheme %q", u.Scheme)
	}
}

func (o *URLOpener) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "mediabridge/1.0")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		resp.Body.Close()
		return nil, fmt.Errorf("url is not an image: %s", resp.Header.Get("Content-Type"))
	}

	o.logger.Debug("Artwork stream opened", zap.String("url", location))
	return resp.Body, nil
}

type urlArtwork struct {
	opener   *URLOpener
	location string
}

func (a *urlArtwork) OpenRead(ctx context.Context) (io.ReadCloser, error) {
	return a.opener.Open(ctx, a.location)
}

func (a *urlArtwork) String() string {
	return a.location
}
