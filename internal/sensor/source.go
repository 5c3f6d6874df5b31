package sensor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/gesture"
)

// Source delivers feature frames, one per sensor event.
type Source interface {
	// Next blocks until the next frame is available. It returns io.EOF when
	// the source is exhausted.
	Next(ctx context.Context) (gesture.Frame, error)
}

// LineSource reads frames from text, one frame per line.
//
// A line is either a list of numbers separated by whitespace or commas, or a
// JSON encoded Skeleton which is converted with Skeleton.Features. Blank
// lines and lines starting with '#' are skipped.
type LineSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewLineSource creates a LineSource reading from r.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{scanner: bufio.NewScanner(r)}
}

// Next returns the frame on the next non-empty line.
func (s *LineSource) Next(ctx context.Context) (gesture.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read frames: %w", err)
			}
			return nil, io.EOF
		}
		s.line++

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		frame, err := ParseFrame(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", s.line, err)
		}
		return frame, nil
	}
}

// ParseFrame parses a single frame in the LineSource format.
func ParseFrame(text string) (gesture.Frame, error) {
	if strings.HasPrefix(text, "{") {
		var s Skeleton
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("parse skeleton: %w", err)
		}
		return s.Features(), nil
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	frame := make(gesture.Frame, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse value %q: %w", f, err)
		}
		frame = append(frame, v)
	}
	return frame, nil
}

// MockSource is a Source that replays a fixed list of frames.
type MockSource struct {
	frames []gesture.Frame
	err    error
	pos    int
}

// NewMockSource creates a MockSource returning frames in order.
func NewMockSource(frames ...gesture.Frame) *MockSource {
	return &MockSource{frames: frames}
}

// SetError sets the error returned once the frames are exhausted, in place
// of io.EOF.
func (m *MockSource) SetError(err error) {
	m.err = err
}

// Next returns the next scripted frame.
func (m *MockSource) Next(ctx context.Context) (gesture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.pos >= len(m.frames) {
		if m.err != nil {
			return nil, m.err
		}
		return nil, io.EOF
	}
	f := m.frames[m.pos]
	m.pos++
	return f, nil
}

// Remaining returns the number of frames not yet delivered.
func (m *MockSource) Remaining() int {
	return len(m.frames) - m.pos
}
