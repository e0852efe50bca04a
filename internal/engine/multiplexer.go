package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/genricoloni/mediabridge/internal/domain"
	"github.com/genricoloni/mediabridge/internal/sink"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Multiplexer routes provider notifications for every live session into a
// single stream of encoded records.
// It implements domain.SessionHandler and may be called concurrently.
type Multiplexer struct {
	logger     *zap.Logger
	provider   domain.SessionProvider
	encoder    domain.Encoder
	sink       domain.Sink
	artwork    domain.ArtworkFetcher
	shutdowner fx.Shutdowner

	mu       sync.Mutex
	sessions map[string]*domain.Session

	inflight  sync.WaitGroup // artwork fetches not yet emitted
	fatalOnce sync.Once
	done      chan struct{}
}

// NewMultiplexer creates the session multiplexer
func NewMultiplexer(
	logger *zap.Logger,
	provider domain.SessionProvider,
	encoder domain.Encoder,
	out domain.Sink,
	artwork domain.ArtworkFetcher,
	shutdowner fx.Shutdowner,
) *Multiplexer {
	return &Multiplexer{
		logger:     logger,
		provider:   provider,
		encoder:    encoder,
		sink:       out,
		artwork:    artwork,
		shutdowner: shutdowner,
		sessions:   make(map[string]*domain.Session),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the provider. It returns immediately (non-blocking).
// A subscription failure is returned and must be treated as fatal.
func (m *Multiplexer) Start(ctx context.Context) error {
	m.logger.Info("Multiplexer starting...")

	if err := m.provider.Subscribe(ctx, m); err != nil {
		return fmt.Errorf("failed to subscribe to media sessions: %w", err)
	}

	go m.watchProvider()
	return nil
}

// watchProvider turns a lost notification channel into a fatal shutdown
func (m *Multiplexer) watchProvider() {
	failures := m.provider.Failures()
	for {
		select {
		case <-m.done:
			return
		case err, ok := <-failures:
			if !ok {
				return
			}
			m.fatal("Media session provider failed", err)
		}
	}
}

// Stop unsubscribes from the provider. Artwork fetches still in flight are
// not waited for.
func (m *Multiplexer) Stop(ctx context.Context) error {
	m.logger.Info("Multiplexer stopping...")
	close(m.done)

	if err := m.provider.Unsubscribe(ctx); err != nil {
		m.logger.Error("Failed to unsubscribe from media sessions", zap.Error(err))
		return err
	}

	m.mu.Lock()
	open := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("Multiplexer stopped", zap.Int("openSessions", open))
	return nil
}

// Wait blocks until every pending artwork record has been emitted
func (m *Multiplexer) Wait() {
	m.inflight.Wait()
}

// OpenSessions returns the ids of sessions currently tracked as open
func (m *Multiplexer) OpenSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// OnSessionOpened emits AddSession, once per open session id
func (m *Multiplexer) OnSessionOpened(s *domain.Session) {
	defer m.recoverHandler(domain.KindSessionAdded)

	m.mu.Lock()
	if _, exists := m.sessions[s.ID()]; exists {
		m.mu.Unlock()
		m.logger.Warn("Session already open, ignoring duplicate", zap.String("session", s.ID()))
		return
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Debug("Session opened",
		zap.String("session", s.ID()),
		zap.String("source", s.SourceAppID()))
	m.emit(domain.SessionAdded{SessionID: s.ID()})
}

// OnSessionClosed emits RemoveSession for a session that is currently open
func (m *Multiplexer) OnSessionClosed(s *domain.Session) {
	defer m.recoverHandler(domain.KindSessionRemoved)

	m.mu.Lock()
	if _, exists := m.sessions[s.ID()]; !exists {
		m.mu.Unlock()
		m.logger.Warn("Close for unknown session, ignoring", zap.String("session", s.ID()))
		return
	}
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	m.logger.Debug("Session closed", zap.String("session", s.ID()))
	m.emit(domain.SessionRemoved{SessionID: s.ID()})
}

// OnFocusChanged emits SessionFocusChanged; s is nil when nothing holds focus
func (m *Multiplexer) OnFocusChanged(s *domain.Session) {
	defer m.recoverHandler(domain.KindFocusChanged)

	var source *string
	if s != nil {
		id := s.SourceAppID()
		source = &id
	}
	m.emit(domain.FocusChanged{SourceAppID: source})
}

// OnPlaybackStateChanged emits the provider's playback status verbatim
func (m *Multiplexer) OnPlaybackStateChanged(s *domain.Session, info domain.PlaybackInfo) {
	defer m.recoverHandler(domain.KindPlaybackStateChanged)

	m.route(s).SetPlayback(info)
	m.emit(domain.PlaybackStateChanged{SessionID: s.ID(), Status: info.Status})
}

// OnMediaPropertiesChanged emits the metadata snapshot. When artwork is
// present the record is emitted from a goroutine once the artwork has been
// read, so a later notification for another session may be written first.
func (m *Multiplexer) OnMediaPropertiesChanged(s *domain.Session, props domain.MediaProperties) {
	defer m.recoverHandler(domain.KindMediaPropertiesChanged)

	m.route(s).SetProperties(props)

	ev := domain.MediaPropertiesChanged{
		SessionID:       s.ID(),
		Title:           props.Title,
		Artist:          props.Artist,
		Genres:          props.Genres,
		TrackNumber:     props.TrackNumber,
		AlbumTitle:      props.AlbumTitle,
		AlbumArtist:     props.AlbumArtist,
		AlbumTrackCount: props.AlbumTrackCount,
	}

	if props.Thumbnail == nil {
		m.emit(ev)
		return
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer m.recoverHandler(domain.KindMediaPropertiesChanged)

		ev.Thumbnail = m.artwork.FetchBase64(context.Background(), props.Thumbnail)
		m.emit(ev)
	}()
}

// OnTimelinePropertyChanged emits the timeline converted to fractional seconds
func (m *Multiplexer) OnTimelinePropertyChanged(s *domain.Session, timeline domain.TimelineProperties) {
	defer m.recoverHandler(domain.KindTimelineChanged)

	m.route(s).SetTimeline(timeline)
	m.emit(domain.TimelineChanged{
		SessionID: s.ID(),
		StartTime: timeline.StartTime.Seconds(),
		Position:  timeline.Position.Seconds(),
		EndTime:   timeline.EndTime.Seconds(),
	})
}

// route returns the tracked handle for s. The provider is authoritative, so
// a notification for an untracked session is still reported.
func (m *Multiplexer) route(s *domain.Session) *domain.Session {
	m.mu.Lock()
	tracked, ok := m.sessions[s.ID()]
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("Notification for untracked session", zap.String("session", s.ID()))
		return s
	}
	return tracked
}

// emit encodes ev and writes it. Encoding problems drop the record;
// a failing sink terminates the process.
func (m *Multiplexer) emit(ev domain.Event) {
	rec, err := m.encoder.Encode(ev)
	if err != nil {
		m.logger.Error("Failed to encode event, dropping record",
			zap.String("event", string(ev.Kind())),
			zap.Error(err))
		return
	}

	if err := m.sink.Write(rec); err != nil {
		if errors.Is(err, sink.ErrInvalidRecord) {
			m.logger.Error("Sink rejected record, dropping",
				zap.String("event", string(ev.Kind())),
				zap.Error(err))
			return
		}
		m.fatal("Output sink unavailable", err)
	}
}

// recoverHandler keeps a panic in one notification from reaching the provider
func (m *Multiplexer) recoverHandler(kind domain.EventKind) {
	if r := recover(); r != nil {
		m.logger.Error("Notification handler panicked, dropping record",
			zap.String("event", string(kind)),
			zap.Any("panic", r))
	}
}

func (m *Multiplexer) fatal(msg string, err error) {
	m.fatalOnce.Do(func() {
		m.logger.Error(msg, zap.Error(err))
		if serr := m.shutdowner.Shutdown(fx.ExitCode(1)); serr != nil {
			m.logger.Error("Failed to request shutdown", zap.Error(serr))
		}
	})
}
