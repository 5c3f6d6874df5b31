package gesture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Gesture file markers.
const (
	markerName     = "@"
	markerFrame    = "~"
	markerSequence = "----"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("gesture file parse error")

// ParseError describes a malformed line in a gesture file.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrParse) hold for every ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// WriteText writes entries in the gesture file format.
func WriteText(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		fmt.Fprintf(bw, "%s%s\n", markerName, e.Name)
		for _, f := range e.Sequence {
			for _, v := range f {
				bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
				bw.WriteByte('\n')
			}
			bw.WriteString(markerFrame + "\n")
		}
		bw.WriteString(markerSequence + "\n")
	}
	return bw.Flush()
}

// ReadText parses the gesture file format. Every frame must hold exactly
// dimension values. Parsing stops at the first malformed line.
func ReadText(r io.Reader, dimension int) ([]Entry, error) {
	var (
		entries []Entry
		name    string
		open    bool
		frames  Sequence
		frame   Frame
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case strings.TrimSpace(line) == "":
			continue

		case strings.HasPrefix(line, markerName):
			if open {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("gesture %q not terminated", name)}
			}
			name = strings.TrimPrefix(line, markerName)
			if name == "" {
				return nil, &ParseError{Line: lineNo, Msg: "empty gesture name", Err: ErrEmptyName}
			}
			open = true
			frames = nil
			frame = nil

		case strings.HasPrefix(line, markerSequence):
			if !open {
				return nil, &ParseError{Line: lineNo, Msg: "sequence terminator outside a gesture"}
			}
			if len(frame) != 0 {
				return nil, &ParseError{Line: lineNo, Msg: "partial frame before sequence terminator"}
			}
			if len(frames) == 0 {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("gesture %q has no frames", name), Err: ErrEmptySequence}
			}
			entries = append(entries, Entry{Name: name, Sequence: frames})
			open = false

		case strings.HasPrefix(line, markerFrame):
			if !open {
				return nil, &ParseError{Line: lineNo, Msg: "frame separator outside a gesture"}
			}
			if len(frame) != dimension {
				return nil, &ParseError{
					Line: lineNo,
					Msg:  fmt.Sprintf("frame has %d values, expected %d", len(frame), dimension),
					Err:  ErrDimensionMismatch,
				}
			}
			frames = append(frames, frame)
			frame = nil

		default:
			if !open {
				return nil, &ParseError{Line: lineNo, Msg: "value outside a gesture"}
			}
			if len(frame) == dimension {
				return nil, &ParseError{Line: lineNo, Msg: "too many values in frame", Err: ErrDimensionMismatch}
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: "invalid value", Err: err}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &ParseError{Line: lineNo, Msg: "invalid value", Err: ErrNonFiniteFrame}
			}
			frame = append(frame, v)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if open {
		return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("gesture %q not terminated", name)}
	}

	return entries, nil
}

// MarshalText serializes the library in the gesture file format.
func (l *Library) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteText(&buf, l.Entries()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalText rebuilds the library from the gesture file format.
// The load is all-or-nothing: on error the library is left unchanged.
func (l *Library) UnmarshalText(text []byte) error {
	entries, err := ReadText(bytes.NewReader(text), l.dimension)
	if err != nil {
		return err
	}
	return l.Replace(entries)
}

// LoadFile replaces the library with the gestures stored at path.
func (l *Library) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read gesture file: %w", err)
	}
	if err := l.UnmarshalText(data); err != nil {
		return fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveFile writes the library to path, replacing any existing file.
func (l *Library) SaveFile(path string) error {
	data, err := l.MarshalText()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".gestures-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write gesture file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close gesture file: %w", err)
	}
	// CreateTemp uses 0600
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod gesture file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename gesture file: %w", err)
	}
	return nil
}

// DefaultFileName returns the timestamped name used for saved gesture files.
func DefaultFileName(t time.Time) string {
	return "RecordedGestures" + t.Format("2006-01-02_15-04") + ".txt"
}
