package control

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const quitCommand = "quit"

// QuitListener requests shutdown when "quit" is read from its input
type QuitListener struct {
	logger     *zap.Logger
	in         io.Reader
	shutdowner fx.Shutdowner
	done       chan struct{}
}

// NewQuitListener creates a listener on standard input
func NewQuitListener(logger *zap.Logger, shutdowner fx.Shutdowner) *QuitListener {
	return newQuitListener(logger, os.Stdin, shutdowner)
}

func newQuitListener(logger *zap.Logger, in io.Reader, shutdowner fx.Shutdowner) *QuitListener {
	return &QuitListener{
		logger:     logger,
		in:         in,
		shutdowner: shutdowner,
		done:       make(chan struct{}),
	}
}

// Start begins listening in the background. The read blocks until input
// arrives, so the goroutine outlives the app when stdin stays open.
func (l *QuitListener) Start(ctx context.Context) error {
	go l.listen()
	return nil
}

// Done is closed once the listener stops reading
func (l *QuitListener) Done() <-chan struct{} {
	return l.done
}

func (l *QuitListener) listen() {
	defer close(l.done)

	scanner := bufio.NewScanner(l.in)
	for scanner.Scan() {
		if !strings.EqualFold(strings.TrimSpace(scanner.Text()), quitCommand) {
			continue
		}
		l.logger.Info("Quit requested on standard input")
		if err := l.shutdowner.Shutdown(); err != nil {
			l.logger.Warn("Shutdown request failed", zap.Error(err))
		}
		return
	}

	if err := scanner.Err(); err != nil {
		l.logger.Warn("Stopped reading standard input", zap.Error(err))
		return
	}
	l.logger.Debug("Standard input closed, quit command unavailable")
}
