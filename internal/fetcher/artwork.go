package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/genricoloni/mediabridge/internal/domain"
	"go.uber.org/zap"
)

var errTooLarge = errors.New("artwork exceeds size limit")

// ArtworkFetcher reads artwork fully into memory and encodes it as base64.
// It never fails: any problem degrades to an empty string.
type ArtworkFetcher struct {
	logger    *zap.Logger
	processor domain.ImageProcessor
	maxBytes  int64
}

// NewArtworkFetcher creates a fetcher that runs artwork through processor before encoding
func NewArtworkFetcher(logger *zap.Logger, cfg domain.Config, processor domain.ImageProcessor) *ArtworkFetcher {
	return &ArtworkFetcher{
		logger:    logger,
		processor: processor,
		maxBytes:  cfg.GetArtworkMaxBytes(),
	}
}

// FetchBase64 returns the base64 artwork bytes, or "" when ref is nil or unreadable
func (f *ArtworkFetcher) FetchBase64(ctx context.Context, ref domain.ArtworkRef) string {
	if ref == nil {
		return ""
	}

	data, err := f.read(ctx, ref)
	if err != nil {
		f.logger.Warn("Failed to read artwork", zap.Error(err))
		return ""
	}
	if len(data) == 0 {
		return ""
	}

	processed, err := f.processor.Process(ctx, data)
	if err != nil {
		f.logger.Debug("Artwork processing failed, using original bytes", zap.Error(err))
		processed = data
	}

	return base64.StdEncoding.EncodeToString(processed)
}

// read opens ref and drains it. The stream is closed on every exit path,
// including a panic raised by the underlying reader.
func (f *ArtworkFetcher) read(ctx context.Context, ref domain.ArtworkRef) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("artwork read panicked: %v", r)
		}
	}()

	rc, err := ref.OpenRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open artwork: %w", err)
	}
	if rc == nil {
		return nil, errors.New("artwork stream is nil")
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			f.logger.Debug("Failed to close artwork stream", zap.Error(cerr))
		}
	}()

	// One extra byte tells a full-size image from a truncated one
	data, err = io.ReadAll(io.LimitReader(rc, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read artwork: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, f.maxBytes)
	}

	f.logger.Debug("Artwork fetched successfully", zap.Int("bytes", len(data)))
	return data, nil
}
