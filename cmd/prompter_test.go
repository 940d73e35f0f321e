package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmfield/internal/fields"
	"farmfield/internal/selection"
)

// scriptedReader replays lines, then returns the final error. With block set
// it waits for Close instead.
type scriptedReader struct {
	lines  []string
	err    error
	block  bool
	closed chan struct{}
}

func newScriptedReader(err error, lines ...string) *scriptedReader {
	return &scriptedReader{lines: lines, err: err, closed: make(chan struct{})}
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) > 0 {
		line := r.lines[0]
		r.lines = r.lines[1:]
		return line, nil
	}
	if r.block {
		<-r.closed
		return "", readline.ErrInterrupt
	}
	return "", r.err
}

func (r *scriptedReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

// readerPrompter returns a consolePrompter that opens rl and counts opens.
func readerPrompter(rl lineReader, out io.Writer, opens *int) *consolePrompter {
	return &consolePrompter{
		open: func() (lineReader, error) {
			if opens != nil {
				*opens++
			}
			return rl, nil
		},
		out: out,
	}
}

var promptOptions = []fields.Summary{
	{ID: "f-1", Name: "North", Source: fields.SourceSample},
	{ID: "f-2", Name: "South", Source: fields.SourceSample},
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr error
		invalid bool
	}{
		{input: "1", want: 0},
		{input: " 3 ", want: 2},
		{input: "q", wantErr: selection.ErrCancelled},
		{input: "QUIT", wantErr: selection.ErrCancelled},
		{input: "", invalid: true},
		{input: "0", invalid: true},
		{input: "4", invalid: true},
		{input: "two", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseChoice(tt.input, 3)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.invalid:
				require.Error(t, err)
				assert.NotErrorIs(t, err, selection.ErrCancelled)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestConsolePrompter_Choose(t *testing.T) {
	var out bytes.Buffer
	rl := newScriptedReader(io.EOF, "x", "7", "2")
	p := readerPrompter(rl, &out, nil)

	id, err := p.Choose(context.Background(), promptOptions)
	require.NoError(t, err)
	assert.Equal(t, "f-2", id)
	assert.Contains(t, out.String(), "North")
	assert.Contains(t, out.String(), "invalid choice")
}

func TestConsolePrompter_Cancel(t *testing.T) {
	tests := []struct {
		name string
		rl   *scriptedReader
	}{
		{"ctrl-c", newScriptedReader(readline.ErrInterrupt)},
		{"ctrl-d", newScriptedReader(io.EOF)},
		{"quit", newScriptedReader(nil, "q")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := readerPrompter(tt.rl, io.Discard, nil)
			_, err := p.Choose(context.Background(), promptOptions)
			assert.ErrorIs(t, err, selection.ErrCancelled)
		})
	}
}

func TestConsolePrompter_ReadError(t *testing.T) {
	p := readerPrompter(newScriptedReader(errors.New("tty gone")), io.Discard, nil)
	_, err := p.Choose(context.Background(), promptOptions)
	require.Error(t, err)
	assert.NotErrorIs(t, err, selection.ErrCancelled)
}

func TestConsolePrompter_ContextCancelled(t *testing.T) {
	rl := newScriptedReader(nil)
	rl.block = true
	p := readerPrompter(rl, io.Discard, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Choose(ctx, promptOptions)
	assert.ErrorIs(t, err, selection.ErrCancelled)

	select {
	case <-rl.closed:
	case <-time.After(time.Second):
		t.Fatal("reader was not closed")
	}
}

func TestConsolePrompter_OpensTerminalOnlyWhenAsked(t *testing.T) {
	opens := 0
	p := readerPrompter(newScriptedReader(io.EOF), io.Discard, &opens)

	// A live listing without an organization fails before anyone is asked.
	outcome := selection.New(fields.NewClient(fields.Config{}, nil), p, selection.Config{}).
		Run(context.Background(), fields.SourceLive)
	require.Equal(t, selection.ResultAborted, outcome.Result)
	assert.Zero(t, opens)
}

func TestConsolePrompter_EachChooseClosesItsReader(t *testing.T) {
	var readers []*scriptedReader
	p := &consolePrompter{
		open: func() (lineReader, error) {
			rl := newScriptedReader(io.EOF, "1")
			readers = append(readers, rl)
			return rl, nil
		},
		out: io.Discard,
	}

	for range 2 {
		id, err := p.Choose(context.Background(), promptOptions)
		require.NoError(t, err)
		assert.Equal(t, "f-1", id)
	}

	require.Len(t, readers, 2)
	for _, rl := range readers {
		select {
		case <-rl.closed:
		default:
			t.Fatal("reader left open")
		}
	}
}

func TestConsolePrompter_OpenError(t *testing.T) {
	p := &consolePrompter{
		open: func() (lineReader, error) { return nil, errors.New("not a terminal") },
		out:  io.Discard,
	}
	_, err := p.Choose(context.Background(), promptOptions)
	require.Error(t, err)
	assert.NotErrorIs(t, err, selection.ErrCancelled)
}
