package domain

import (
	"context"
	"io"
	"time"
)

// SessionHandler receives provider notifications.
// Implementations must tolerate concurrent calls for different sessions.
type SessionHandler interface {
	OnSessionOpened(s *Session)
	OnSessionClosed(s *Session)
	// OnFocusChanged receives nil when no session holds focus
	OnFocusChanged(s *Session)
	OnPlaybackStateChanged(s *Session, info PlaybackInfo)
	OnMediaPropertiesChanged(s *Session, props MediaProperties)
	OnTimelinePropertyChanged(s *Session, timeline TimelineProperties)
}

// SessionProvider is the OS media-session surface.
// Implementations should handle D-Bus/MPRIS communication
type SessionProvider interface {
	// Subscribe registers the handler and begins delivering notifications.
	// It returns once delivery has started; an error is fatal.
	Subscribe(ctx context.Context, h SessionHandler) error

	// Unsubscribe stops delivery. No notification is delivered after it returns.
	Unsubscribe(ctx context.Context) error

	// Failures reports loss of the notification channel after Subscribe
	Failures() <-chan error
}

// ArtworkRef is an opaque handle to artwork bytes
type ArtworkRef interface {
	// OpenRead opens a stream over the artwork; callers must close it
	OpenRead(ctx context.Context) (io.ReadCloser, error)
}

// ArtworkResolver turns a provider artwork location into a reference.
// It returns nil when the location is empty or unsupported.
type ArtworkResolver interface {
	Resolve(location string) ArtworkRef
}

// ArtworkFetcher reads artwork and encodes it as base64 text
type ArtworkFetcher interface {
	// FetchBase64 returns "" when ref is nil or retrieval fails
	FetchBase64(ctx context.Context, ref ArtworkRef) string
}

// ImageProcessor defines the interface for in-memory image processing
// This is OS-agnostic and works purely with byte streams
type ImageProcessor interface {
	// Process transforms image data (e.g., resize)
	// Returns the processed image bytes or an error
	Process(ctx context.Context, imageData []byte) ([]byte, error)
}

// Encoder converts a domain event into an output record
type Encoder interface {
	Encode(ev Event) (Record, error)
}

// Sink writes records as whole, non-interleaved lines
type Sink interface {
	Write(rec Record) error
}

// Config defines the interface for application configuration
type Config interface {
	// GetLogLevel returns the zap level name
	GetLogLevel() string

	// GetColorMode returns "auto", "always" or "never"
	GetColorMode() string

	// GetArtworkMaxBytes caps how much artwork is read into memory
	GetArtworkMaxBytes() int64

	// GetArtworkTimeout bounds a single remote artwork download
	GetArtworkTimeout() time.Duration

	// GetArtworkMaxDimension returns the thumbnail edge limit, 0 disables resizing
	GetArtworkMaxDimension() int
}
