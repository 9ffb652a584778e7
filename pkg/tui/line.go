package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/rating"
)

// ErrTooManyAttempts is returned when the input keeps being unrecognised
var ErrTooManyAttempts = errors.New("too many unrecognised answers")

const maxAttempts = 5

// LinePrompter asks for comparisons over plain text streams, one answer per
// line. It serves scripted runs and terminals where the TUI is not wanted.
type LinePrompter struct {
	in  *bufio.Scanner
	out io.Writer

	start   sync.Once
	lines   chan string // closed at end of input
	readErr error       // set before lines is closed
}

var _ data.Prompter = (*LinePrompter)(nil)

// NewLinePrompter reads answers from in and writes questions to out
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewScanner(in), out: out, lines: make(chan string)}
}

// read feeds lines to Prompt so a blocked read never hides a cancelled context
func (l *LinePrompter) read() {
	for l.in.Scan() {
		l.lines <- l.in.Text()
	}
	l.readErr = l.in.Err()
	close(l.lines)
}

// ParseAnswer maps a typed answer to a result. ok is false for anything it
// does not recognise; abort is true for a request to stop.
func ParseAnswer(s string) (result rating.Result, abort bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "a":
		return rating.WinA, false, true
	case "2", "b":
		return rating.WinB, false, true
	case "t", "tie", "=":
		return rating.Tie, false, true
	case "q", "quit", "stop":
		return "", true, true
	}
	return "", false, false
}

// Prompt writes the comparison and reads lines until one is a valid answer.
// End of input counts as a request to stop.
func (l *LinePrompter) Prompt(ctx context.Context, p data.Prompt) (rating.Result, error) {
	fmt.Fprintf(l.out, "\nRound %d (%s)\n", p.Round, p.Bucket)
	fmt.Fprintf(l.out, "  [1] %s (%s)\n", p.Target.Title, p.Target.MediaType)
	fmt.Fprintf(l.out, "  [2] %s (%s)\n", p.Opponent.Title, p.Opponent.MediaType)
	fmt.Fprintf(l.out, "  model expects %.0f%% for [1]\n", p.WinProbability*100)

	for range maxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(l.out, "Preferred [1/2], t for a tie, q to stop: ")
		l.start.Do(func() { go l.read() })

		var line string
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case text, open := <-l.lines:
			if !open {
				if l.readErr != nil {
					return "", fmt.Errorf("failed to read answer: %w", l.readErr)
				}
				return "", data.ErrAborted
			}
			line = text
		}

		result, abort, ok := ParseAnswer(line)
		switch {
		case !ok:
			fmt.Fprintf(l.out, "unrecognised answer %q\n", line)
		case abort:
			return "", data.ErrAborted
		default:
			return result, nil
		}
	}
	return "", ErrTooManyAttempts
}
