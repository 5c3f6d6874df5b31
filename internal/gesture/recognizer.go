package gesture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidConfig is returned when recognition parameters are out of range.
var ErrInvalidConfig = errors.New("invalid recognizer config")

// Config holds the library-wide recognition parameters.
type Config struct {
	// Dimension is the number of values in every frame.
	Dimension int `yaml:"dimension" split_words:"true"`
	// Threshold is the maximum normalized distance still reported as a match.
	Threshold float64 `yaml:"threshold" split_words:"true"`
	// Window is the DTW slope tolerance band, see Options.
	Window float64 `yaml:"window" split_words:"true"`
	// MaxSlope caps consecutive single-axis DTW steps. Zero disables it.
	MaxSlope int `yaml:"max_slope" split_words:"true"`
	// EndpointThreshold skips entries whose final frame is further than this
	// from the candidate's final frame. Zero disables the pre-filter.
	EndpointThreshold float64 `yaml:"endpoint_threshold" split_words:"true"`
	// MinFrames is the shortest candidate worth recognizing.
	MinFrames int `yaml:"min_frames" split_words:"true"`
	// Workers is the number of goroutines scanning library entries.
	Workers int `yaml:"workers" split_words:"true"`
	// FrameBudget bounds one recognition attempt in the frame loop. Zero means no bound.
	FrameBudget time.Duration `yaml:"frame_budget" split_words:"true"`
}

// DefaultConfig returns the parameters tuned for 12-value skeleton features.
func DefaultConfig() Config {
	return Config{
		Dimension:         12,
		Threshold:         0.6,
		Window:            0.5,
		MaxSlope:          2,
		EndpointThreshold: 2,
		MinFrames:         10,
		Workers:           1,
		FrameBudget:       30 * time.Millisecond,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.Dimension <= 0:
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	case c.Threshold <= 0 || math.IsNaN(c.Threshold):
		return fmt.Errorf("%w: threshold must be positive, got %v", ErrInvalidConfig, c.Threshold)
	case c.Window <= 0 || math.IsNaN(c.Window):
		return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfig, c.Window)
	case c.MaxSlope < 0:
		return fmt.Errorf("%w: max slope must not be negative, got %d", ErrInvalidConfig, c.MaxSlope)
	case c.EndpointThreshold < 0 || math.IsNaN(c.EndpointThreshold):
		return fmt.Errorf("%w: endpoint threshold must not be negative, got %v", ErrInvalidConfig, c.EndpointThreshold)
	case c.MinFrames <= 0:
		return fmt.Errorf("%w: min frames must be positive, got %d", ErrInvalidConfig, c.MinFrames)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	case c.FrameBudget < 0:
		return fmt.Errorf("%w: frame budget must not be negative, got %s", ErrInvalidConfig, c.FrameBudget)
	}
	return nil
}

// Options returns the DTW options derived from the config.
func (c Config) Options() Options {
	return Options{Window: c.Window, MaxSlope: c.MaxSlope}
}

// Result is the outcome of one recognition attempt.
// The zero value is Unknown.
type Result struct {
	Name     string  `json:"name,omitempty"`
	Distance float64 `json:"distance"`
}

// Unknown is the result when no entry matches confidently enough.
var Unknown = Result{}

// Matched reports whether the result names a gesture.
func (r Result) Matched() bool {
	return r.Name != ""
}

func (r Result) String() string {
	if !r.Matched() {
		return "unknown"
	}
	return fmt.Sprintf("%s (%.3f)", r.Name, r.Distance)
}

// Score is the distance between a candidate and one library entry.
type Score struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
	Skipped  bool    `json:"skipped,omitempty"`
}

// Recognizer classifies candidate sequences against a Library.
type Recognizer struct {
	library *Library
	config  Config
	opts    Options
}

// NewRecognizer creates a Recognizer over lib. The config must be valid and
// its dimension must match the library's.
func NewRecognizer(lib *Library, cfg Config) (*Recognizer, error) {
	if lib == nil {
		return nil, fmt.Errorf("%w: nil library", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dimension != lib.Dimension() {
		return nil, fmt.Errorf("%w: dimension %d does not match library dimension %d",
			ErrInvalidConfig, cfg.Dimension, lib.Dimension())
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}

	return &Recognizer{
		library: lib,
		config:  cfg,
		opts:    cfg.Options(),
	}, nil
}

// Config returns the recognition parameters.
func (r *Recognizer) Config() Config {
	return r.config
}

// Library returns the library the recognizer reads from.
func (r *Recognizer) Library() *Library {
	return r.library
}

// Recognize classifies candidate. Candidates shorter than MinFrames are Unknown.
// The first entry holding the lowest distance wins; it is reported only when
// that distance is within Threshold.
func (r *Recognizer) Recognize(candidate Sequence) Result {
	res, _ := r.RecognizeContext(context.Background(), candidate)
	return res
}

// RecognizeContext is Recognize with cancellation. When ctx expires before
// every entry has been scored, Unknown and ctx.Err() are returned.
func (r *Recognizer) RecognizeContext(ctx context.Context, candidate Sequence) (Result, error) {
	if len(candidate) < r.config.MinFrames {
		return Unknown, nil
	}

	scores, err := r.score(ctx, candidate)
	if err != nil {
		return Unknown, err
	}

	best := -1
	for i, s := range scores {
		if s.Skipped {
			continue
		}
		if best < 0 || s.Distance < scores[best].Distance {
			best = i
		}
	}

	if best < 0 || scores[best].Distance > r.config.Threshold {
		return Unknown, nil
	}

	return Result{Name: scores[best].Name, Distance: scores[best].Distance}, nil
}

// Scores returns the distance to every entry, lowest first.
// Entries rejected by the endpoint pre-filter are reported as skipped.
func (r *Recognizer) Scores(candidate Sequence) []Score {
	scores, _ := r.score(context.Background(), candidate)
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Skipped != scores[j].Skipped {
			return !scores[i].Skipped
		}
		return scores[i].Distance < scores[j].Distance
	})
	return scores
}

// score computes one Score per library entry, in library order.
func (r *Recognizer) score(ctx context.Context, candidate Sequence) ([]Score, error) {
	entries := r.library.Entries()
	scores := make([]Score, len(entries))

	if len(candidate) == 0 {
		for i, e := range entries {
			scores[i] = Score{Name: e.Name, Distance: math.Inf(1), Skipped: true}
		}
		return scores, nil
	}

	scoreOne := func(i int) {
		e := entries[i]
		scores[i] = Score{Name: e.Name}
		if !r.endpointClose(candidate, e.Sequence) {
			scores[i].Distance = math.Inf(1)
			scores[i].Skipped = true
			return
		}
		scores[i].Distance = Distance(candidate, e.Sequence, r.opts)
	}

	if r.config.Workers <= 1 || len(entries) < 2 {
		for i := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			scoreOne(i)
		}
		return scores, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scoreOne(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return scores, nil
}

// endpointClose reports whether the final frames of both sequences lie within
// the endpoint threshold.
func (r *Recognizer) endpointClose(candidate, reference Sequence) bool {
	if r.config.EndpointThreshold <= 0 {
		return true
	}
	last := candidate[len(candidate)-1]
	ref := reference[len(reference)-1]
	return frameDistance(last, ref) <= r.config.EndpointThreshold
}
