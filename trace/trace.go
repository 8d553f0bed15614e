// Package trace provides branch trace loading, writing and synthetic
// generation.
//
// A trace file is UTF-8 text with one branch per line:
//
//	<hex-address> <T|N>
//
// Empty lines and lines starting with '#' are ignored.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Event is a single observed conditional branch.
type Event struct {
	// Address is the branch instruction address.
	Address uint64
	// Taken is the actual outcome of the branch.
	Taken bool
}

// ErrMalformedLine is wrapped by FormatError when a line does not have
// exactly two fields.
var ErrMalformedLine = errors.New("expected <hex-address> <T|N>")

// MaxLineLength is the longest line Parse accepts, comments included.
const MaxLineLength = 1 << 20

// FormatError reports a trace line that could not be parsed. A single
// FormatError fails the whole load.
type FormatError struct {
	// Line is the 1-based line number.
	Line int
	// Text is the offending line with surrounding whitespace removed.
	Text string
	// Err is the underlying cause.
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("trace line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Load reads and parses the trace file at path.
func Load(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	events, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return events, nil
}

// Parse reads a whole trace from r. Any malformed line aborts parsing and no
// events are returned.
func Parse(r io.Reader) ([]Event, error) {
	var events []Event

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ev, err := parseLine(line)
		if err != nil {
			return nil, &FormatError{Line: lineNo, Text: line, Err: err}
		}
		events = append(events, ev)
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &FormatError{Line: lineNo + 1, Err: err}
		}
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return events, nil
}

func parseLine(line string) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Event{}, ErrMalformedLine
	}

	addr, err := parseAddress(fields[0])
	if err != nil {
		return Event{}, err
	}

	// Anything other than T counts as not taken.
	return Event{
		Address: addr,
		Taken:   strings.EqualFold(fields[1], "T"),
	}, nil
}

func parseAddress(s string) (uint64, error) {
	digits := s
	if len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
		digits = digits[2:]
	}

	addr, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}

	return addr, nil
}

// Outcome returns the trace-file token for a branch outcome.
func Outcome(taken bool) string {
	if taken {
		return "T"
	}
	return "N"
}

// Write emits events in trace-file format.
func Write(w io.Writer, events []Event) error {
	bw := bufio.NewWriter(w)
	for _, ev := range events {
		if _, err := fmt.Fprintf(bw, "0x%X %s\n", ev.Address, Outcome(ev.Taken)); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}

	return nil
}

// Save writes events to a trace file at path, replacing any existing file.
func Save(path string, events []Event) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}

	if err := Write(f, events); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	return nil
}
