package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/genricoloni/mediabridge/internal/config"
	"github.com/genricoloni/mediabridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func record(line string) domain.Record {
	return domain.Record{Kind: domain.KindSessionAdded, Line: []byte(line), Color: domain.ColorGreen}
}

func TestLineWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf, config.ColorAuto)

	require.NoError(t, w.Write(record(`{"EventName":"AddSession","SessionId":"S1"}`)))
	require.NoError(t, w.Write(record(`{"EventName":"RemoveSession","SessionId":"S1"}`)))

	assert.Equal(t,
		"{\"EventName\":\"AddSession\",\"SessionId\":\"S1\"}\n{\"EventName\":\"RemoveSession\",\"SessionId\":\"S1\"}\n",
		buf.String())
}

func TestLineWriter_InvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "Empty", line: ""},
		{name: "Embedded Newline", line: "{\"a\":1}\n{\"b\":2}"},
		{name: "Embedded Carriage Return", line: "{\"a\":\r1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewLineWriter(&buf, config.ColorNever)

			err := w.Write(record(tt.line))
			assert.ErrorIs(t, err, ErrInvalidRecord)
			assert.Zero(t, buf.Len())
		})
	}
}

func TestLineWriter_ColorAlways(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf, config.ColorAlways)

	line := `{"EventName":"AddSession","SessionId":"S1"}`
	require.NoError(t, w.Write(record(line)))

	out := buf.String()
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, line)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestLineWriter_NonTerminalAutoIsPlain(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf, config.ColorAuto)

	require.NoError(t, w.Write(record(`{"EventName":"AddSession","SessionId":"S1"}`)))
	assert.NotContains(t, buf.String(), "\x1b[")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestLineWriter_SinkFailure(t *testing.T) {
	w := NewLineWriter(failingWriter{}, config.ColorNever)

	err := w.Write(record(`{"EventName":"AddSession","SessionId":"S1"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRecord)
	assert.Contains(t, err.Error(), "broken pipe")
}

// TestLineWriter_ConcurrentWriters checks that every line stays a complete
// JSON value when many goroutines emit at once.
func TestLineWriter_ConcurrentWriters(t *testing.T) {
	const (
		writers   = 16
		perWriter = 200
	)

	var buf bytes.Buffer
	w := NewLineWriter(&buf, config.ColorNever)

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			for j := 0; j < perWriter; j++ {
				payload := fmt.Sprintf(`{"EventName":"MediaPropertyChanged","SessionId":"S%d","Title":"%s"}`,
					i, strings.Repeat("x", 64+j))
				if err := w.Write(record(payload)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	scanner := bufio.NewScanner(&buf)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		var v map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v), "line %d is not a complete record", lines)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, writers*perWriter, lines)
}
