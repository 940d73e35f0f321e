package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"farmfield/internal/fields"
	"farmfield/internal/selection"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// lineReader is the part of *readline.Instance the prompter uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// consolePrompter asks the user to pick a field by number on the terminal.
// Ctrl-C, Ctrl-D and "q" cancel the selection. The terminal is only taken
// over while Choose runs.
type consolePrompter struct {
	open func() (lineReader, error)
	out  io.Writer
}

func newConsolePrompter(cmd *cobra.Command) (selection.Prompter, error) {
	open := func() (lineReader, error) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "Select a field (q to cancel): ",
			HistoryFile:     filepath.Join(os.TempDir(), ".farmfield_history"),
			InterruptPrompt: "^C",
			EOFPrompt:       "q",
			Stdout:          cmd.OutOrStdout(),
			Stderr:          cmd.ErrOrStderr(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create readline instance: %w", err)
		}
		return rl, nil
	}
	return &consolePrompter{open: open, out: cmd.OutOrStdout()}, nil
}

type readResult struct {
	line string
	err  error
}

// Choose implements selection.Prompter.
func (p *consolePrompter) Choose(ctx context.Context, options []fields.Summary) (string, error) {
	rl, err := p.open()
	if err != nil {
		return "", err
	}
	defer rl.Close()

	fmt.Fprintln(p.out, renderSummaries(options, true))

	for {
		lines := make(chan readResult, 1)
		go func() {
			line, err := rl.Readline()
			lines <- readResult{line: line, err: err}
		}()

		var res readResult
		select {
		case <-ctx.Done():
			return "", selection.ErrCancelled
		case res = <-lines:
		}

		switch {
		case errors.Is(res.err, readline.ErrInterrupt), errors.Is(res.err, io.EOF):
			return "", selection.ErrCancelled
		case res.err != nil:
			return "", fmt.Errorf("readline error: %w", res.err)
		}

		idx, err := parseChoice(res.line, len(options))
		if errors.Is(err, selection.ErrCancelled) {
			return "", err
		}
		if err != nil {
			fmt.Fprintln(p.out, err)
			continue
		}
		return options[idx].ID, nil
	}
}

// parseChoice turns a 1-based menu number into an index. "q" and "quit"
// cancel.
func parseChoice(input string, n int) (int, error) {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "q", "quit", "exit":
		return 0, selection.ErrCancelled
	case "":
		return 0, fmt.Errorf("enter a number between 1 and %d", n)
	}

	choice, err := strconv.Atoi(input)
	if err != nil || choice < 1 || choice > n {
		return 0, fmt.Errorf("invalid choice %q, enter a number between 1 and %d", input, n)
	}
	return choice - 1, nil
}
