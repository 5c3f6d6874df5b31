// Package gesture provides the gesture library, DTW matching and recognition.
package gesture

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrEmptyName is returned when a gesture name is empty.
	ErrEmptyName = errors.New("gesture name is empty")
	// ErrInvalidName is returned when a gesture name cannot be written to a gesture file.
	ErrInvalidName = errors.New("gesture name contains a line break")
	// ErrEmptySequence is returned when a sequence holds no frames.
	ErrEmptySequence = errors.New("sequence is empty")
	// ErrDimensionMismatch is returned when a frame length differs from the library dimension.
	ErrDimensionMismatch = errors.New("frame dimension mismatch")
	// ErrNonFiniteFrame is returned when a frame holds NaN or infinite values.
	ErrNonFiniteFrame = errors.New("frame has non-finite values")
)

// ValidateName checks that name is usable as a gesture name. A name is one
// line of the gesture file, so it may not hold line breaks.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Frame is one time sample of pose-derived features.
type Frame []float64

// Finite reports whether every value in the frame is a finite number.
func (f Frame) Finite() bool {
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the frame.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Sequence is an ordered list of frames making up one gesture performance.
type Sequence []Frame

// Clone returns a deep copy of the sequence.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	for i, f := range s {
		out[i] = f.Clone()
	}
	return out
}

// Validate checks that the sequence is non-empty and every frame
// has the given dimension and only finite values.
func (s Sequence) Validate(dimension int) error {
	if len(s) == 0 {
		return ErrEmptySequence
	}
	for _, f := range s {
		if len(f) != dimension {
			return ErrDimensionMismatch
		}
		if !f.Finite() {
			return ErrNonFiniteFrame
		}
	}
	return nil
}

// Equal reports whether two sequences hold identical values.
func (s Sequence) Equal(other Sequence) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if len(s[i]) != len(other[i]) {
			return false
		}
		for j := range s[i] {
			if s[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}
