package domain

// EventKind names an event variant; it is the first field of every record
type EventKind string

const (
	KindSessionAdded           EventKind = "AddSession"
	KindSessionRemoved         EventKind = "RemoveSession"
	KindFocusChanged           EventKind = "SessionFocusChanged"
	KindPlaybackStateChanged   EventKind = "PlaybackStateChanged"
	KindMediaPropertiesChanged EventKind = "MediaPropertyChanged"
	KindTimelineChanged        EventKind = "TimelinePropertyChanged"
)

// Event is the closed set of domain events the encoder understands.
// Only types in this package can implement it.
type Event interface {
	Kind() EventKind
	event()
}

// SessionAdded is emitted when the provider opens a session
type SessionAdded struct {
	SessionID string
}

// SessionRemoved is emitted when the provider closes a session
type SessionRemoved struct {
	SessionID string
}

// FocusChanged is emitted when the focused session changes.
// SourceAppID is nil when no session holds focus.
type FocusChanged struct {
	SourceAppID *string
}

// PlaybackStateChanged is emitted on a transport state change
type PlaybackStateChanged struct {
	SessionID string
	Status    PlaybackStatus
}

// MediaPropertiesChanged carries a full metadata snapshot.
// Thumbnail holds base64 artwork bytes, or "" when absent or unreadable.
type MediaPropertiesChanged struct {
	SessionID       string
	Title           string
	Artist          string
	Genres          []string
	TrackNumber     int
	AlbumTitle      string
	AlbumArtist     string
	AlbumTrackCount int
	Thumbnail       string
}

// TimelineChanged carries timeline values in fractional seconds
type TimelineChanged struct {
	SessionID string
	StartTime float64
	Position  float64
	EndTime   float64
}

func (SessionAdded) Kind() EventKind           { return KindSessionAdded }
func (SessionRemoved) Kind() EventKind         { return KindSessionRemoved }
func (FocusChanged) Kind() EventKind           { return KindFocusChanged }
func (PlaybackStateChanged) Kind() EventKind   { return KindPlaybackStateChanged }
func (MediaPropertiesChanged) Kind() EventKind { return KindMediaPropertiesChanged }
func (TimelineChanged) Kind() EventKind        { return KindTimelineChanged }

func (SessionAdded) event()           {}
func (SessionRemoved) event()         {}
func (FocusChanged) event()           {}
func (PlaybackStateChanged) event()   {}
func (MediaPropertiesChanged) event() {}
func (TimelineChanged) event()        {}

// Color is the display tag attached to an encoded record
type Color string

const (
	ColorGreen   Color = "green"
	ColorRed     Color = "red"
	ColorGray    Color = "gray"
	ColorYellow  Color = "yellow"
	ColorCyan    Color = "cyan"
	ColorMagenta Color = "magenta"
)

// Record is one encoded event, ready to be written as a single line
type Record struct {
	Kind  EventKind
	Line  []byte
	Color Color
}
