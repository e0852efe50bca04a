package encoder

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/genricoloni/mediabridge/internal/domain"
)

// ErrUnknownEvent is returned for event kinds the encoder has no layout for
var ErrUnknownEvent = errors.New("unknown event kind")

// Record layouts. Field order here is the key order on the wire.

type sessionRecord struct {
	EventName domain.EventKind `json:"EventName"`
	SessionID string           `json:"SessionId"`
}

type focusRecord struct {
	EventName domain.EventKind `json:"EventName"`
	SessionID *string          `json:"SessionId"`
}

type playbackRecord struct {
	EventName      domain.EventKind `json:"EventName"`
	SessionID      string           `json:"SessionId"`
	PlaybackStatus string           `json:"PlaybackStatus"`
}

type propertiesRecord struct {
	EventName       domain.EventKind `json:"EventName"`
	SessionID       string           `json:"SessionId"`
	Title           string           `json:"Title"`
	Artist          string           `json:"Artist"`
	Genres          []string         `json:"Genres"`
	TrackNumber     int              `json:"TrackNumber"`
	AlbumTitle      string           `json:"AlbumTitle"`
	AlbumArtist     string           `json:"AlbumArtist"`
	AlbumTrackCount int              `json:"AlbumTrackCount"`
	Thumbnail       string           `json:"Thumbnail"`
}

type timelineRecord struct {
	EventName domain.EventKind `json:"EventName"`
	SessionID string           `json:"SessionId"`
	StartTime float64          `json:"StartTime"`
	Position  float64          `json:"Position"`
	EndTime   float64          `json:"EndTime"`
}

var colors = map[domain.EventKind]domain.Color{
	domain.KindSessionAdded:           domain.ColorGreen,
	domain.KindSessionRemoved:         domain.ColorRed,
	domain.KindFocusChanged:           domain.ColorGray,
	domain.KindPlaybackStateChanged:   domain.ColorYellow,
	domain.KindMediaPropertiesChanged: domain.ColorCyan,
	domain.KindTimelineChanged:        domain.ColorMagenta,
}

// JSONEncoder renders domain events as single-line JSON objects
type JSONEncoder struct{}

// NewJSONEncoder creates a new event encoder
func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

// Encode converts ev into a record. It performs no I/O.
func (e *JSONEncoder) Encode(ev domain.Event) (domain.Record, error) {
	var payload any

	switch ev := ev.(type) {
	case domain.SessionAdded:
		payload = sessionRecord{EventName: ev.Kind(), SessionID: ev.SessionID}
	case domain.SessionRemoved:
		payload = sessionRecord{EventName: ev.Kind(), SessionID: ev.SessionID}
	case domain.FocusChanged:
		payload = focusRecord{EventName: ev.Kind(), SessionID: ev.SourceAppID}
	case domain.PlaybackStateChanged:
		payload = playbackRecord{
			EventName:      ev.Kind(),
			SessionID:      ev.SessionID,
			PlaybackStatus: string(ev.Status),
		}
	case domain.MediaPropertiesChanged:
		genres := ev.Genres
		if genres == nil {
			genres = []string{}
		}
		payload = propertiesRecord{
			EventName:       ev.Kind(),
			SessionID:       ev.SessionID,
			Title:           ev.Title,
			Artist:          ev.Artist,
			Genres:          genres,
			TrackNumber:     ev.TrackNumber,
			AlbumTitle:      ev.AlbumTitle,
			AlbumArtist:     ev.AlbumArtist,
			AlbumTrackCount: ev.AlbumTrackCount,
			Thumbnail:       ev.Thumbnail,
		}
	case domain.TimelineChanged:
		payload = timelineRecord{
			EventName: ev.Kind(),
			SessionID: ev.SessionID,
			StartTime: ev.StartTime,
			Position:  ev.Position,
			EndTime:   ev.EndTime,
		}
	default:
		return domain.Record{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}

	// json.Marshal escapes control characters, so the line never holds a raw newline
	line, err := json.Marshal(payload)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal %s: %w", ev.Kind(), err)
	}

	return domain.Record{Kind: ev.Kind(), Line: line, Color: colors[ev.Kind()]}, nil
}

// Decode parses a line produced by Encode back into its domain event
func Decode(line []byte) (domain.Event, error) {
	var head struct {
		EventName domain.EventKind `json:"EventName"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("failed to read event name: %w", err)
	}

	switch head.EventName {
	case domain.KindSessionAdded:
		var r sessionRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", head.EventName, err)
		}
		return domain.SessionAdded{SessionID: r.SessionID}, nil
	case domain.KindSessionRemoved:
		var r sessionRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", head.EventName, err)
		}
		return domain.SessionRemoved{SessionID: r.SessionID}, nil
	case domain.KindFocusChanged:
		var r focusRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", head.EventName, err)
		}
		return domain.FocusChanged{SourceAppID: r.SessionID}, nil
	case domain.KindPlaybackStateChanged:
		var r playbackRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", head.EventName, err)
		}
		return domain.PlaybackStateChanged{
			SessionID: r.SessionID,
			Status:    domain.PlaybackStatus(r.PlaybackStatus),
		}, nil
	case domain.KindMediaPropertiesChanged:
		var r propertiesRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", head.EventName, err)
		}
		return domain.MediaPropertiesChanged{
			SessionID:       r.SessionID,
			Title:           r.Title,
			Artist:          r.Artist,
			Genres:          r.Genres,
			TrackNumber:     r.TrackNumber,
			AlbumTitle:      r.AlbumTitle,
			AlbumArtist:     r.AlbumArtist,
			AlbumTrackCount: r.AlbumTrackCount,
			Thumbnail:       r.Thumbnail,
		}, nil
	case domain.KindTimelineChanged:
		var r timelineRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", head.EventName, err)
		}
		return domain.TimelineChanged{
			SessionID: r.SessionID,
			StartTime: r.StartTime,
			Position:  r.Position,
			EndTime:   r.EndTime,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, head.EventName)
	}
}
