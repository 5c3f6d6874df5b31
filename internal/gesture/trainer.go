package gesture

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidSample is returned for missing or undecodable training samples.
var ErrInvalidSample = errors.New("invalid training sample")

// Trainer turns several recorded samples of one gesture into a single
// reference sequence.
type Trainer struct {
	dimension int
}

// NewTrainer creates a Trainer for frames of the given dimension.
func NewTrainer(dimension int) *Trainer {
	return &Trainer{dimension: dimension}
}

// Sample is a recorded gesture performance as stored by the samples API.
type Sample struct {
	Frames    []Frame `json:"frames"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Decode parses raw JSON samples into sequences, checking every frame
// against the trainer's dimension.
func (t *Trainer) Decode(samples []json.RawMessage) ([]Sequence, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples provided", ErrInvalidSample)
	}

	seqs := make([]Sequence, 0, len(samples))
	for i, raw := range samples {
		var sample Sample
		if err := json.Unmarshal(raw, &sample); err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", ErrInvalidSample, i, err)
		}
		seq := Sequence(sample.Frames)
		if err := seq.Validate(t.dimension); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// Average resamples every sequence to the length of the first one and
// averages them frame by frame.
func (t *Trainer) Average(seqs []Sequence) (Sequence, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("%w: no samples provided", ErrInvalidSample)
	}

	for i, s := range seqs {
		if err := s.Validate(t.dimension); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	targetLength := len(seqs[0])
	averaged := make(Sequence, targetLength)
	for i := range averaged {
		averaged[i] = make(Frame, t.dimension)
	}

	for _, s := range seqs {
		resampled := resample(s, targetLength)
		for i := range averaged {
			floats.Add(averaged[i], resampled[i])
		}
	}

	n := float64(len(seqs))
	for i := range averaged {
		floats.Scale(1/n, averaged[i])
	}

	return averaged, nil
}

// resample returns seq stretched or shrunk to exactly targetLength frames
// using linear interpolation.
func resample(seq Sequence, targetLength int) Sequence {
	if len(seq) == 0 {
		return nil
	}

	result := make(Sequence, targetLength)

	if len(seq) == 1 || targetLength <= 1 {
		for i := range result {
			result[i] = seq[0].Clone()
		}
		return result
	}

	for i := 0; i < targetLength; i++ {
		// Map index i to a position in the original sequence
		pos := float64(i) / float64(targetLength-1) * float64(len(seq)-1)

		idx := int(pos)
		if idx >= len(seq)-1 {
			idx = len(seq) - 2
		}
		frac := pos - float64(idx)

		f := make(Frame, len(seq[idx]))
		floats.AddScaledTo(f, seq[idx], frac, seq[idx+1])
		floats.AddScaled(f, -frac, seq[idx])
		result[i] = f
	}

	return result
}
