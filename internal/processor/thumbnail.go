package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // GIF format support
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/mediabridge/internal/domain"
	"go.uber.org/zap"
)

const jpegQuality = 90

// Thumbnailer shrinks album art that exceeds a configured edge length.
// With no limit configured it hands the input back untouched.
type Thumbnailer struct {
	logger       *zap.Logger
	maxDimension int
}

// NewThumbnailer creates an artwork processor from the application config
func NewThumbnailer(logger *zap.Logger, cfg domain.Config) *Thumbnailer {
	return &Thumbnailer{
		logger:       logger,
		maxDimension: cfg.GetArtworkMaxDimension(),
	}
}

// Process fits the image inside a maxDimension square, keeping its aspect ratio
func (p *Thumbnailer) Process(ctx context.Context, imageData []byte) ([]byte, error) {
	if p.maxDimension <= 0 {
		return imageData, nil
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Validate image dimensions to prevent division by zero
	bounds := img.Bounds()
	if bounds.Dy() == 0 || bounds.Dx() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	if bounds.Dx() <= p.maxDimension && bounds.Dy() <= p.maxDimension {
		return imageData, nil
	}

	p.logger.Debug("Downscaling artwork",
		zap.Int("w", bounds.Dx()),
		zap.Int("h", bounds.Dy()),
		zap.Int("max", p.maxDimension))
	thumb := imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if format == "png" {
		err = png.Encode(buf, thumb)
	} else {
		err = jpeg.Encode(buf, thumb, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	p.logger.Debug("Artwork processed successfully",
		zap.Int("before", len(imageData)),
		zap.Int("after", buf.Len()))
	return buf.Bytes(), nil
}
