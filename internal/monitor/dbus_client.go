//go:build linux

package monitor

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// DBusClient is the subset of the session bus the MPRIS provider relies on.
//
//go:generate mockgen -destination=mocks/dbus_client_mock.go -package=mocks github.com/genricoloni/mediabridge/internal/monitor DBusClient
type DBusClient interface {
	Close() error

	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error

	// Signal registers ch for delivery; the bus closes ch when the connection drops
	Signal(ch chan<- *dbus.Signal)

	ListNames() ([]string, error)
	GetNameOwner(name string) (string, error)

	// GetProperty reads a fully qualified property, e.g.
	// "org.mpris.MediaPlayer2.Player.Metadata", from the object at path
	// owned by dest (well-known or unique name).
	GetProperty(dest, path, prop string) (dbus.Variant, error)
}

// sessionBus implements DBusClient on a private session bus connection
type sessionBus struct {
	conn *dbus.Conn
}

// dialSessionBus opens a private connection so closing it never affects
// other users of the shared session bus connection in this process.
func dialSessionBus() (DBusClient, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session bus auth: %w", err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session bus hello: %w", err)
	}
	return &sessionBus{conn: conn}, nil
}

func (b *sessionBus) Close() error {
	return b.conn.Close()
}

func (b *sessionBus) AddMatchSignal(options ...dbus.MatchOption) error {
	return b.conn.AddMatchSignal(options...)
}

func (b *sessionBus) RemoveMatchSignal(options ...dbus.MatchOption) error {
	return b.conn.RemoveMatchSignal(options...)
}

func (b *sessionBus) Signal(ch chan<- *dbus.Signal) {
	b.conn.Signal(ch)
}

func (b *sessionBus) ListNames() ([]string, error) {
	var names []string
	err := b.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (b *sessionBus) GetNameOwner(name string) (string, error) {
	var owner string
	err := b.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

// GetProperty never activates a player that is not already running
func (b *sessionBus) GetProperty(dest, path, prop string) (dbus.Variant, error) {
	idx := strings.LastIndex(prop, ".")
	if idx < 0 {
		return dbus.Variant{}, fmt.Errorf("property %q is not qualified by an interface", prop)
	}

	var v dbus.Variant
	err := b.conn.Object(dest, dbus.ObjectPath(path)).
		Call("org.freedesktop.DBus.Properties.Get", dbus.FlagNoAutoStart, prop[:idx], prop[idx+1:]).
		Store(&v)
	return v, err
}
