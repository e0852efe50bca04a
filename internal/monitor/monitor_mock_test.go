//go:build linux

package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/genricoloni/mediabridge/internal/domain"
	"github.com/genricoloni/mediabridge/internal/monitor/mocks"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const (
	testPlayerName = "org.mpris.MediaPlayer2.spotify"
	testUnique     = ":1.42"
)

func newMockedMonitor(t *testing.T) (*MprisMonitor, *mocks.MockDBusClient, *recordingHandler) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockDBusClient(ctrl)

	mon, h := newTestMonitor(mockClient)
	return mon, mockClient, h
}

// trackPlayer registers a player without going through the bus
func trackPlayer(mon *MprisMonitor, unique, name string) {
	id := name[len(mprisPrefix):]
	mon.players[unique] = &player{session: domain.NewSession(id, id), name: name}
	mon.focused = unique
}

// TestFetchPlayerState unifies all scenarios regarding state fetching:
// 1. Success (Happy Path)
// 2. DBus Errors (Connection fail)
// 3. Invalid Data types (Robustness)
func TestFetchPlayerState(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(*mocks.MockDBusClient)
		expectError   bool
		expectedKinds []string
		check         func(*testing.T, []call)
	}{
		{
			name: "Success - Valid Metadata",
			setupMock: func(m *mocks.MockDBusClient) {
				gomock.InOrder(
					m.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
						Return(dbus.MakeVariant("Playing"), nil),
					m.EXPECT().GetProperty(testUnique, mprisPath, propMetadata).
						Return(dbus.MakeVariant(map[string]dbus.Variant{
							"xesam:title":  dbus.MakeVariant("Stairway to Heaven"),
							"xesam:artist": dbus.MakeVariant([]string{"Led Zeppelin"}),
							"mpris:length": dbus.MakeVariant(int64(482_000_000)),
						}), nil),
					m.EXPECT().GetProperty(testUnique, mprisPath, propPosition).
						Return(dbus.MakeVariant(int64(5_000_000)), nil),
				)
			},
			expectedKinds: []string{"playback", "properties", "timeline"},
			check: func(t *testing.T, calls []call) {
				assert.Equal(t, domain.StatusPlaying, calls[0].status)
				assert.Equal(t, "Stairway to Heaven", calls[1].props.Title)
				assert.Equal(t, "Led Zeppelin", calls[1].props.Artist)
				assert.Equal(t, 5*time.Second, calls[2].timeline.Position)
				assert.Equal(t, 482*time.Second, calls[2].timeline.EndTime)
			},
		},
		{
			name: "DBus Error - Connection Fail",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
					Return(dbus.MakeVariant(""), fmt.Errorf("connection timeout"))
			},
			expectError: true,
		},
		{
			name: "Metadata Fetch Fails After Status",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
					Return(dbus.MakeVariant("Paused"), nil)
				m.EXPECT().GetProperty(testUnique, mprisPath, propMetadata).
					Return(dbus.MakeVariant(""), fmt.Errorf("connection timeout"))
			},
			expectError:   true,
			expectedKinds: []string{"playback"},
		},
		{
			name: "Invalid Data - Metadata is Int not Map",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
					Return(dbus.MakeVariant("Stopped"), nil)
				m.EXPECT().GetProperty(testUnique, mprisPath, propMetadata).
					Return(dbus.MakeVariant(12345), nil) // Wrong type
			},
			expectError:   false, // Should handle gracefully, no error returned
			expectedKinds: []string{"playback"},
		},
		{
			name: "Invalid Data - Status is not a String",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
					Return(dbus.MakeVariant(int32(1)), nil)
			},
			expectError: true,
		},
		{
			name: "Position Unavailable",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
					Return(dbus.MakeVariant("Playing"), nil)
				m.EXPECT().GetProperty(testUnique, mprisPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title": dbus.MakeVariant("Live Stream"),
					}), nil)
				m.EXPECT().GetProperty(testUnique, mprisPath, propPosition).
					Return(dbus.MakeVariant(""), fmt.Errorf("not supported"))
			},
			expectedKinds: []string{"playback", "properties", "timeline"},
			check: func(t *testing.T, calls []call) {
				assert.Equal(t, domain.TimelineProperties{}, calls[2].timeline)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon, mockClient, h := newMockedMonitor(t)
			trackPlayer(mon, testUnique, testPlayerName)
			tt.setupMock(mockClient)

			err := mon.fetchPlayerState(testUnique)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			calls := h.Calls()
			kindsEqual(t, h.Kinds(), tt.expectedKinds...)
			if tt.check != nil {
				tt.check(t, calls)
			}
		})
	}
}

func TestDetectExistingPlayers(t *testing.T) {
	t.Run("Announces MPRIS Players Only", func(t *testing.T) {
		mon, mockClient, h := newMockedMonitor(t)

		mockClient.EXPECT().ListNames().Return([]string{
			"org.freedesktop.DBus",
			testPlayerName,
			"org.mpris.MediaPlayer2.vlc",
			":1.7",
		}, nil)

		// spotify resolves and reports its state
		mockClient.EXPECT().GetNameOwner(testPlayerName).Return(testUnique, nil)
		mockClient.EXPECT().GetProperty(testPlayerName, mprisPath, propDesktopEntry).
			Return(dbus.MakeVariant("spotify-client"), nil)
		mockClient.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
			Return(dbus.MakeVariant("Paused"), nil)
		mockClient.EXPECT().GetProperty(testUnique, mprisPath, propMetadata).
			Return(dbus.MakeVariant(12345), nil)

		// vlc vanished between ListNames and GetNameOwner
		mockClient.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.vlc").
			Return("", fmt.Errorf("name has no owner"))

		require.NoError(t, mon.detectExistingPlayers())

		calls := h.Calls()
		kindsEqual(t, h.Kinds(), "opened", "focus", "playback")
		assert.Equal(t, "spotify", calls[0].session)
		assert.Equal(t, "spotify-client", calls[0].source)
		assert.Equal(t, domain.StatusPaused, calls[2].status)
		assert.Equal(t, testPlayerName, mon.getPlayerName(testUnique))
	})

	t.Run("ListNames Failure", func(t *testing.T) {
		mon, mockClient, h := newMockedMonitor(t)

		mockClient.EXPECT().ListNames().Return(nil, fmt.Errorf("bus gone"))

		assert.Error(t, mon.detectExistingPlayers())
		assert.Empty(t, h.Calls())
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("Connection Failure", func(t *testing.T) {
		mon := NewMprisMonitor(zap.NewNop(), stubResolver{})
		mon.connect = func() (DBusClient, error) { return nil, errors.New("no session bus") }

		err := mon.Subscribe(context.Background(), &recordingHandler{})
		assert.ErrorContains(t, err, "no session bus")
		assert.False(t, mon.running)
	})

	t.Run("Match Rule Failure Closes Connection", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockClient := mocks.NewMockDBusClient(ctrl)
		mockClient.EXPECT().AddMatchSignal(gomock.Any()).Return(errors.New("access denied"))
		mockClient.EXPECT().Close().Return(nil)

		mon := NewMprisMonitor(zap.NewNop(), stubResolver{})
		mon.connect = func() (DBusClient, error) { return mockClient, nil }

		err := mon.Subscribe(context.Background(), &recordingHandler{})
		assert.ErrorContains(t, err, "access denied")
		assert.False(t, mon.running)
	})

	t.Run("Cancelled Context Closes Connection", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockClient := mocks.NewMockDBusClient(ctrl)
		mockClient.EXPECT().Close().Return(nil)

		mon := NewMprisMonitor(zap.NewNop(), stubResolver{})
		mon.connect = func() (DBusClient, error) { return mockClient, nil }

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, mon.Subscribe(ctx, &recordingHandler{}), context.Canceled)
	})
}

func TestSubscribeUnsubscribe(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockDBusClient(ctrl)

	var signals chan<- *dbus.Signal
	mockClient.EXPECT().AddMatchSignal(gomock.Any()).Return(nil).Times(3)
	mockClient.EXPECT().Signal(gomock.Any()).Do(func(ch chan<- *dbus.Signal) {
		signals = ch
	})
	mockClient.EXPECT().ListNames().Return([]string{}, nil)
	mockClient.EXPECT().GetProperty(testPlayerName, mprisPath, propDesktopEntry).
		Return(dbus.MakeVariant(""), errors.New("no entry"))
	mockClient.EXPECT().GetProperty(testUnique, mprisPath, propPlaybackStatus).
		Return(dbus.MakeVariant("Playing"), nil)
	mockClient.EXPECT().GetProperty(testUnique, mprisPath, propMetadata).
		Return(dbus.MakeVariant(map[string]dbus.Variant{}), nil)
	mockClient.EXPECT().GetProperty(testUnique, mprisPath, propPosition).
		Return(dbus.MakeVariant(int64(0)), nil)
	mockClient.EXPECT().RemoveMatchSignal(gomock.Any()).Return(nil).Times(3)
	mockClient.EXPECT().Close().Return(nil)

	mon := NewMprisMonitor(zap.NewNop(), stubResolver{})
	mon.connect = func() (DBusClient, error) { return mockClient, nil }
	h := &recordingHandler{}

	require.NoError(t, mon.Subscribe(context.Background(), h))
	require.NotNil(t, signals)

	signals <- &dbus.Signal{
		Name: signalNameOwnerChanged,
		Body: []interface{}{testPlayerName, "", testUnique},
	}

	assert.Eventually(t, func() bool {
		return len(h.Calls()) == 5
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, mon.Unsubscribe(context.Background()))
	kindsEqual(t, h.Kinds(), "opened", "focus", "playback", "properties", "timeline")

	// Stopped monitors ignore a second Unsubscribe
	assert.NoError(t, mon.Unsubscribe(context.Background()))
}

func TestUnsubscribe_CombinesCleanupErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockDBusClient(ctrl)
	mockClient.EXPECT().RemoveMatchSignal(gomock.Any()).Return(errors.New("rule missing")).Times(3)
	mockClient.EXPECT().Close().Return(errors.New("already closed"))

	mon, _ := newTestMonitor(mockClient)

	err := mon.Unsubscribe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule missing")
	assert.Contains(t, err.Error(), "already closed")
}

func TestSignalChannelClosed_ReportsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockDBusClient(ctrl)

	var signals chan<- *dbus.Signal
	mockClient.EXPECT().AddMatchSignal(gomock.Any()).Return(nil).Times(3)
	mockClient.EXPECT().Signal(gomock.Any()).Do(func(ch chan<- *dbus.Signal) {
		signals = ch
	})
	mockClient.EXPECT().ListNames().Return([]string{}, nil)
	mockClient.EXPECT().RemoveMatchSignal(gomock.Any()).Return(nil).Times(3)
	mockClient.EXPECT().Close().Return(nil)

	mon := NewMprisMonitor(zap.NewNop(), stubResolver{})
	mon.connect = func() (DBusClient, error) { return mockClient, nil }

	require.NoError(t, mon.Subscribe(context.Background(), &recordingHandler{}))
	close(signals)

	select {
	case err := <-mon.Failures():
		assert.ErrorContains(t, err, "signal channel closed")
	case <-time.After(time.Second):
		t.Fatal("expected a failure report")
	}

	require.NoError(t, mon.Unsubscribe(context.Background()))
}
