//go:build linux

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/mediabridge/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"

	propDesktopEntry   = "org.mpris.MediaPlayer2.DesktopEntry"
	propPlaybackStatus = mprisPlayerIface + ".PlaybackStatus"
	propMetadata       = mprisPlayerIface + ".Metadata"
	propPosition       = mprisPlayerIface + ".Position"

	signalPropertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
	signalNameOwnerChanged  = "org.freedesktop.DBus.NameOwnerChanged"
	signalSeeked            = mprisPlayerIface + ".Seeked"
)

var (
	propertiesRule = []dbus.MatchOption{
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	nameOwnerRule = []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	}
	seekedRule = []dbus.MatchOption{
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface(mprisPlayerIface),
		dbus.WithMatchMember("Seeked"),
	}
)

// player is the provider-side state of one MPRIS player
type player struct {
	session *domain.Session
	name    string // well-known bus name
	status  domain.PlaybackStatus
	length  time.Duration
}

// MprisMonitor exposes MPRIS players on the session bus as media sessions.
// All notifications are delivered from a single goroutine.
type MprisMonitor struct {
	logger   *zap.Logger
	resolver domain.ArtworkResolver
	connect  func() (DBusClient, error)

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	conn     DBusClient // Interface for testability
	handler  domain.SessionHandler
	wg       sync.WaitGroup     // Tracks the signal goroutine
	players  map[string]*player // Keyed by unique bus name (:1.45)
	focused  string             // Unique name of the focused player, "" when none
	failures chan error
}

// NewMprisMonitor creates a new MPRIS session provider
func NewMprisMonitor(logger *zap.Logger, resolver domain.ArtworkResolver) *MprisMonitor {
	return &MprisMonitor{
		logger:   logger,
		resolver: resolver,
		connect:  dialSessionBus,
		players:  make(map[string]*player),
		failures: make(chan error, 1),
	}
}

// Subscribe connects to the session bus and starts delivering notifications to h
func (m *MprisMonitor) Subscribe(ctx context.Context, h domain.SessionHandler) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.handler = h

	monitorCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	conn, err := m.connect()
	if err != nil {
		m.logger.Error("Failed to connect to session bus", zap.Error(err))
		m.reset()
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	// Check if we were cancelled while connecting to D-Bus
	if err := ctx.Err(); err != nil {
		m.logger.Info("Subscription cancelled during D-Bus connection")
		if cerr := conn.Close(); cerr != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(cerr))
		}
		m.reset()
		return err
	}

	if err := conn.AddMatchSignal(propertiesRule...); err != nil {
		m.logger.Error("Failed to add match signal", zap.Error(err))
		if cerr := conn.Close(); cerr != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(cerr))
		}
		m.reset()
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	if err := conn.AddMatchSignal(nameOwnerRule...); err != nil {
		// Non-fatal, continue without dynamic tracking
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	}
	if err := conn.AddMatchSignal(seekedRule...); err != nil {
		m.logger.Warn("Failed to add Seeked match signal", zap.Error(err))
	}

	signals := make(chan *dbus.Signal, 32)
	conn.Signal(signals)

	// Protect connection assignment with mutex to avoid race with Unsubscribe()
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.wg.Add(1)
	go m.monitorSignals(monitorCtx, signals)

	m.logger.Info("MPRIS monitor subscribed")
	return nil
}

func (m *MprisMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.cancel = nil
	m.handler = nil
}

// Unsubscribe stops delivery and closes the bus connection
func (m *MprisMonitor) Unsubscribe(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()

	// No notification may be delivered once this returns
	m.logger.Debug("Waiting for signal goroutine to finish")
	m.wg.Wait()

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.handler = nil
	m.players = make(map[string]*player)
	m.focused = ""
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = multierr.Combine(
			conn.RemoveMatchSignal(propertiesRule...),
			conn.RemoveMatchSignal(nameOwnerRule...),
			conn.RemoveMatchSignal(seekedRule...),
			conn.Close(),
		)
	}
	if err != nil {
		m.logger.Warn("D-Bus cleanup incomplete", zap.Error(err))
	}

	m.logger.Info("MPRIS monitor shutdown complete")
	return err
}

// Failures reports loss of the bus connection
func (m *MprisMonitor) Failures() <-chan error {
	return m.failures
}

// monitorSignals announces existing players, then delivers D-Bus signals
func (m *MprisMonitor) monitorSignals(ctx context.Context, signals <-chan *dbus.Signal) {
	defer m.wg.Done() // Signal completion when goroutine exits

	if err := m.detectExistingPlayers(); err != nil {
		m.logger.Warn("Failed to detect existing players", zap.Error(err))
	}

	m.logger.Info("Signal monitoring goroutine started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Signal monitoring goroutine stopped")
			return
		case sig, ok := <-signals:
			if !ok {
				m.reportFailure(errors.New("D-Bus signal channel closed"))
				return
			}
			if sig == nil {
				continue
			}
			m.dispatch(sig)
		}
	}
}

func (m *MprisMonitor) dispatch(sig *dbus.Signal) {
	switch sig.Name {
	case signalNameOwnerChanged:
		m.handleNameOwnerChanged(sig)
	case signalSeeked:
		m.handleSeeked(sig)
	default:
		m.handleSignal(sig)
	}
}

func (m *MprisMonitor) reportFailure(err error) {
	m.logger.Error("MPRIS monitor lost its bus connection", zap.Error(err))
	select {
	case m.failures <- err:
	default:
	}
}

// detectExistingPlayers queries D-Bus for currently running MPRIS players
func (m *MprisMonitor) detectExistingPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	// Filter for MPRIS player names (org.mpris.MediaPlayer2.*)
	playerCount := 0
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		m.logger.Info("Detected MPRIS player", zap.String("name", name))

		// Signals carry the unique bus name, so sessions are keyed by it
		uniqueName, err := m.conn.GetNameOwner(name)
		if err != nil {
			m.logger.Warn("Failed to resolve player owner",
				zap.String("player", name),
				zap.Error(err))
			continue
		}
		playerCount++

		m.openPlayer(uniqueName, name)
		if err := m.fetchPlayerState(uniqueName); err != nil {
			m.logger.Warn("Failed to fetch initial player state",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	m.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchPlayerState reads and emits a player's current status and metadata
func (m *MprisMonitor) fetchPlayerState(uniqueName string) error {
	statusVariant, err := m.conn.GetProperty(uniqueName, mprisPath, propPlaybackStatus)
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}
	status, ok := statusVariant.Value().(string)
	if !ok {
		return fmt.Errorf("invalid playback status format")
	}
	m.applyStatus(uniqueName, status)

	variant, err := m.conn.GetProperty(uniqueName, mprisPath, propMetadata)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	// SAFE CAST: Some players may return nil or unexpected types if not playing anything
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		m.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", m.getPlayerName(uniqueName)))
		return nil
	}
	m.applyMetadata(uniqueName, metadata)
	return nil
}

// handleNameOwnerChanged processes NameOwnerChanged signals to track player lifecycle
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPrefix) {
		return // Not an MPRIS player
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	if oldOwner != "" {
		m.logger.Info("MPRIS player removed",
			zap.String("player", name),
			zap.String("unique", oldOwner))
		m.closePlayer(oldOwner)
	}

	if newOwner != "" {
		m.logger.Info("New MPRIS player detected",
			zap.String("player", name),
			zap.String("unique", newOwner))
		m.openPlayer(newOwner, name)
		if err := m.fetchPlayerState(newOwner); err != nil {
			m.logger.Warn("Failed to fetch state from new player",
				zap.String("player", name),
				zap.Error(err))
		}
	}
}

// handleSignal processes a PropertiesChanged signal
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	// PropertiesChanged signal has 3 arguments:
	// 1. Interface name (string)
	// 2. Changed properties (map[string]Variant)
	// 3. Invalidated properties ([]string)

	if sig.Name != signalPropertiesChanged {
		return
	}

	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != mprisPlayerIface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	if !m.isTracked(sig.Sender) {
		m.logger.Debug("PropertiesChanged from unknown sender", zap.String("sender", sig.Sender))
		return
	}

	m.logger.Debug("Received PropertiesChanged signal",
		zap.String("sender", sig.Sender),
		zap.String("player", m.getPlayerName(sig.Sender)),
		zap.Int("properties", len(changedProps)))

	metadataVariant, hasMetadata := changedProps["Metadata"]
	statusVariant, hasStatus := changedProps["PlaybackStatus"]

	if !hasMetadata && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	var status string

	if hasMetadata {
		metadata, ok = metadataVariant.Value().(map[string]dbus.Variant)
		if !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	}

	if hasStatus {
		status, ok = statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	}

	if hasStatus {
		m.applyStatus(sig.Sender, status)
	}
	if hasMetadata {
		m.applyMetadata(sig.Sender, metadata)
	}
}

// handleSeeked reports a position jump; the body holds the new position in µs
func (m *MprisMonitor) handleSeeked(sig *dbus.Signal) {
	if len(sig.Body) < 1 {
		return
	}
	us, ok := variantInt64(sig.Body[0])
	if !ok {
		return
	}

	m.mu.RLock()
	p, exists := m.players[sig.Sender]
	var length time.Duration
	if exists {
		length = p.length
	}
	handler := m.handler
	m.mu.RUnlock()

	if !exists || handler == nil {
		return
	}

	handler.OnTimelinePropertyChanged(p.session, domain.TimelineProperties{
		Position: microseconds(us),
		EndTime:  length,
	})
}

// openPlayer creates a session for a newly visible player
func (m *MprisMonitor) openPlayer(uniqueName, name string) {
	id := strings.TrimPrefix(name, mprisPrefix)
	source := m.desktopEntry(name, id)

	m.mu.Lock()
	if _, exists := m.players[uniqueName]; exists {
		m.mu.Unlock()
		return
	}
	p := &player{session: domain.NewSession(id, source), name: name}
	m.players[uniqueName] = p
	gainsFocus := m.focused == ""
	if gainsFocus {
		m.focused = uniqueName
	}
	handler := m.handler
	m.mu.Unlock()

	m.logger.Debug("Mapped player name",
		zap.String("unique", uniqueName),
		zap.String("wellKnown", name))

	if handler == nil {
		return
	}
	handler.OnSessionOpened(p.session)
	if gainsFocus {
		handler.OnFocusChanged(p.session)
	}
}

// closePlayer removes a player's session and moves focus if it held it
func (m *MprisMonitor) closePlayer(uniqueName string) {
	m.mu.Lock()
	p, exists := m.players[uniqueName]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.players, uniqueName)

	focusMoved := m.focused == uniqueName
	var next *player
	if focusMoved {
		m.focused, next = m.pickFocusLocked()
	}
	handler := m.handler
	m.mu.Unlock()

	if handler == nil {
		return
	}
	handler.OnSessionClosed(p.session)
	if focusMoved {
		if next != nil {
			handler.OnFocusChanged(next.session)
		} else {
			handler.OnFocusChanged(nil)
		}
	}
}

// pickFocusLocked chooses a remaining player to hold focus: a playing one
// first, then the smallest session id. Callers hold m.mu.
func (m *MprisMonitor) pickFocusLocked() (string, *player) {
	uniques := make([]string, 0, len(m.players))
	for u := range m.players {
		uniques = append(uniques, u)
	}
	sort.Slice(uniques, func(i, j int) bool {
		a, b := m.players[uniques[i]], m.players[uniques[j]]
		aPlaying, bPlaying := a.status == domain.StatusPlaying, b.status == domain.StatusPlaying
		if aPlaying != bPlaying {
			return aPlaying
		}
		return a.session.ID() < b.session.ID()
	})

	if len(uniques) == 0 {
		return "", nil
	}
	return uniques[0], m.players[uniques[0]]
}

// applyStatus emits a playback change; a player that starts playing takes focus
func (m *MprisMonitor) applyStatus(uniqueName, status string) {
	m.mu.Lock()
	p, exists := m.players[uniqueName]
	if !exists {
		m.mu.Unlock()
		return
	}
	p.status = domain.PlaybackStatus(status)
	takesFocus := p.status == domain.StatusPlaying && m.focused != uniqueName
	if takesFocus {
		m.focused = uniqueName
	}
	info := domain.PlaybackInfo{Status: p.status}
	handler := m.handler
	m.mu.Unlock()

	if handler == nil {
		return
	}
	handler.OnPlaybackStateChanged(p.session, info)
	if takesFocus {
		handler.OnFocusChanged(p.session)
	}
}

// applyMetadata emits the track properties followed by the timeline
func (m *MprisMonitor) applyMetadata(uniqueName string, metadata map[string]dbus.Variant) {
	props := m.parseMetadata(metadata)

	var length time.Duration
	if v, ok := metadata["mpris:length"]; ok {
		if us, ok := variantInt64(v.Value()); ok {
			length = microseconds(us)
		}
	}

	m.mu.Lock()
	p, exists := m.players[uniqueName]
	if exists {
		p.length = length
	}
	handler := m.handler
	m.mu.Unlock()

	if !exists || handler == nil {
		return
	}

	m.logger.Info("Media change detected",
		zap.String("player", p.name),
		zap.String("title", props.Title),
		zap.String("artist", props.Artist))

	handler.OnMediaPropertiesChanged(p.session, props)
	handler.OnTimelinePropertyChanged(p.session, domain.TimelineProperties{
		Position: m.queryPosition(uniqueName),
		EndTime:  length,
	})
}

// queryPosition reads the current position; players that do not report it yield 0
func (m *MprisMonitor) queryPosition(uniqueName string) time.Duration {
	variant, err := m.conn.GetProperty(uniqueName, mprisPath, propPosition)
	if err != nil {
		m.logger.Debug("Position unavailable", zap.String("player", uniqueName), zap.Error(err))
		return 0
	}
	us, ok := variantInt64(variant.Value())
	if !ok {
		return 0
	}
	return microseconds(us)
}

// desktopEntry returns the player's desktop entry name, or fallback
func (m *MprisMonitor) desktopEntry(name, fallback string) string {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return fallback
	}

	variant, err := conn.GetProperty(name, mprisPath, propDesktopEntry)
	if err != nil {
		return fallback
	}
	if entry, ok := variant.Value().(string); ok && entry != "" {
		return entry
	}
	return fallback
}

// parseMetadata converts MPRIS metadata to domain properties
func (m *MprisMonitor) parseMetadata(metadata map[string]dbus.Variant) domain.MediaProperties {
	var props domain.MediaProperties

	if metadata == nil {
		return props
	}

	if v, ok := metadata["xesam:title"]; ok {
		props.Title, _ = v.Value().(string)
	}

	// Artist lists are joined; some non-compliant players send a plain string
	if v, ok := metadata["xesam:artist"]; ok {
		props.Artist = strings.Join(variantStrings(v.Value()), ", ")
	}
	if v, ok := metadata["xesam:albumArtist"]; ok {
		props.AlbumArtist = strings.Join(variantStrings(v.Value()), ", ")
	}
	if v, ok := metadata["xesam:genre"]; ok {
		props.Genres = variantStrings(v.Value())
	}

	if v, ok := metadata["xesam:album"]; ok {
		props.AlbumTitle, _ = v.Value().(string)
	}

	if v, ok := metadata["xesam:trackNumber"]; ok {
		if n, ok := variantInt64(v.Value()); ok {
			props.TrackNumber = int(n)
		}
	}

	if v, ok := metadata["mpris:artUrl"]; ok {
		if artURL, ok := v.Value().(string); ok && artURL != "" {
			props.Thumbnail = m.resolver.Resolve(artURL)
		} else {
			// Some players (browsers, local files) may send empty artUrl
			m.logger.Debug("Empty artUrl received", zap.String("title", props.Title))
		}
	}

	return props
}

func (m *MprisMonitor) isTracked(uniqueName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.players[uniqueName]
	return ok
}

// getPlayerName returns the well-known player name for a unique bus name
// Falls back to the unique name if no mapping exists
func (m *MprisMonitor) getPlayerName(uniqueName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.players[uniqueName]; ok {
		return p.name
	}
	return uniqueName
}

func microseconds(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

func variantStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	default:
		return nil
	}
}

// variantInt64 accepts the integer widths players use in practice
func variantInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint16:
		return int64(n), true
	case byte:
		return int64(n), true
	case float64:
		return int64(n), true
	case dbus.Variant:
		return variantInt64(n.Value())
	default:
		return 0, false
	}
}
