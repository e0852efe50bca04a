package sink

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/genricoloni/mediabridge/internal/config"
	"github.com/genricoloni/mediabridge/internal/domain"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ErrInvalidRecord is returned for records that cannot be written as one line
var ErrInvalidRecord = errors.New("invalid record")

var palette = map[domain.Color]lipgloss.Color{
	domain.ColorGreen:   lipgloss.Color("2"),
	domain.ColorRed:     lipgloss.Color("1"),
	domain.ColorGray:    lipgloss.Color("7"),
	domain.ColorYellow:  lipgloss.Color("3"),
	domain.ColorCyan:    lipgloss.Color("6"),
	domain.ColorMagenta: lipgloss.Color("5"),
}

// LineWriter writes each record as one whole line and flushes it before
// releasing the lock, so concurrent writers never interleave.
type LineWriter struct {
	mu     sync.Mutex
	out    *bufio.Writer
	styles map[domain.Color]lipgloss.Style
}

// NewStdoutWriter creates the process sink on standard output
func NewStdoutWriter(cfg domain.Config) *LineWriter {
	return NewLineWriter(os.Stdout, cfg.GetColorMode())
}

// NewLineWriter creates a sink on out. Records are colorized in "always"
// mode, or in "auto" mode when out is a terminal.
func NewLineWriter(out io.Writer, colorMode string) *LineWriter {
	w := &LineWriter{out: bufio.NewWriter(out)}

	if !useColor(out, colorMode) {
		return w
	}

	renderer := lipgloss.NewRenderer(out)
	if colorMode == config.ColorAlways {
		renderer.SetColorProfile(termenv.ANSI)
	}

	w.styles = make(map[domain.Color]lipgloss.Style, len(palette))
	for tag, c := range palette {
		w.styles[tag] = renderer.NewStyle().Foreground(c)
	}
	return w
}

func useColor(out io.Writer, mode string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorAuto:
		f, ok := out.(*os.File)
		if !ok {
			return false
		}
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	default:
		return false
	}
}

// Write emits rec followed by a newline and flushes it
func (w *LineWriter) Write(rec domain.Record) error {
	if len(rec.Line) == 0 {
		return fmt.Errorf("%w: empty line", ErrInvalidRecord)
	}
	if bytes.ContainsAny(rec.Line, "\r\n") {
		return fmt.Errorf("%w: embedded line break in %s", ErrInvalidRecord, rec.Kind)
	}

	line := rec.Line
	if style, ok := w.styles[rec.Color]; ok {
		line = []byte(style.Render(string(rec.Line)))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.out.Write(line); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}
	return nil
}
