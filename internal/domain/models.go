package domain

import (
	"sync"
	"time"
)

// PlaybackStatus is the textual name of a session's transport state.
// Values are passed through from the provider verbatim.
type PlaybackStatus string

const (
	StatusClosed   PlaybackStatus = "Closed"
	StatusOpened   PlaybackStatus = "Opened"
	StatusChanging PlaybackStatus = "Changing"
	// StatusStopped indicates the media is stopped
	StatusStopped PlaybackStatus = "Stopped"
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlaybackStatus = "Playing"
	// StatusPaused indicates the media is paused
	StatusPaused PlaybackStatus = "Paused"
)

// PlaybackInfo carries the playback state reported with a notification
type PlaybackInfo struct {
	Status PlaybackStatus
}

// MediaProperties is a full snapshot of a session's track metadata
type MediaProperties struct {
	Title           string
	Artist          string
	Genres          []string
	TrackNumber     int
	AlbumTitle      string
	AlbumArtist     string
	AlbumTrackCount int
	// Thumbnail is nil when the player exposes no artwork
	Thumbnail ArtworkRef
}

// TimelineProperties describes the playable range and current position
type TimelineProperties struct {
	StartTime time.Duration
	Position  time.Duration
	EndTime   time.Duration
}

// SessionSnapshot is a copy of the last-known properties of a session
type SessionSnapshot struct {
	Playback   PlaybackInfo
	Properties MediaProperties
	Timeline   TimelineProperties
}

// Session is the handle for one media session exposed by the provider.
// Identity is fixed at creation; the snapshot is replaced on every
// notification, never merged.
type Session struct {
	id          string
	sourceAppID string

	mu       sync.RWMutex
	snapshot SessionSnapshot
}

// NewSession creates a handle for a freshly opened provider session
func NewSession(id, sourceAppID string) *Session {
	return &Session{id: id, sourceAppID: sourceAppID}
}

// ID returns the provider-assigned session identifier
func (s *Session) ID() string {
	return s.id
}

// SourceAppID returns the identifier of the application owning the session
func (s *Session) SourceAppID() string {
	return s.sourceAppID
}

func (s *Session) SetPlayback(info PlaybackInfo) {
	s.mu.Lock()
	s.snapshot.Playback = info
	s.mu.Unlock()
}

func (s *Session) SetProperties(props MediaProperties) {
	s.mu.Lock()
	s.snapshot.Properties = props
	s.mu.Unlock()
}

func (s *Session) SetTimeline(tl TimelineProperties) {
	s.mu.Lock()
	s.snapshot.Timeline = tl
	s.mu.Unlock()
}

// Snapshot returns a copy of the last-known properties
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}
