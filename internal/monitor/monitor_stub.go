//go:build !linux

package monitor

import (
	"context"
	"fmt"

	"github.com/genricoloni/mediabridge/internal/domain"
	"go.uber.org/zap"
)

// MprisMonitor stub for non-Linux platforms
type MprisMonitor struct {
	logger   *zap.Logger
	failures chan error
}

// NewMprisMonitor creates a stub provider that fails to subscribe on non-Linux platforms
func NewMprisMonitor(logger *zap.Logger, _ domain.ArtworkResolver) *MprisMonitor {
	return &MprisMonitor{logger: logger, failures: make(chan error)}
}

// Subscribe returns an error indicating MPRIS monitoring is not supported on this platform
func (m *MprisMonitor) Subscribe(ctx context.Context, h domain.SessionHandler) error {
	return fmt.Errorf("MPRIS monitoring is only supported on Linux systems")
}

// Unsubscribe is a no-op on non-Linux platforms
func (m *MprisMonitor) Unsubscribe(ctx context.Context) error {
	return nil
}

// Failures never reports anything since no connection is ever made
func (m *MprisMonitor) Failures() <-chan error {
	return m.failures
}
