// Package capture maintains the live window of recent feature frames and the
// countdown/capture workflow that records new reference gestures.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/gesture"
)

// Default buffer settings.
const (
	DefaultMaxSize    = 32
	DefaultDecimation = 2
	DefaultCountdown  = 3 * time.Second
)

var (
	// ErrNotCapturing is returned when committing outside capture mode.
	ErrNotCapturing = errors.New("not capturing")
	// ErrEmptyBuffer is returned when committing an empty buffer.
	ErrEmptyBuffer = errors.New("buffer is empty")
	// ErrInvalidConfig is returned for out-of-range buffer settings.
	ErrInvalidConfig = errors.New("invalid buffer config")
)

// State is the capture workflow state.
type State int

const (
	// Idle feeds the buffer to the recognizer.
	Idle State = iota
	// CountingDown waits for the countdown deadline before capturing.
	CountingDown
	// Capturing records frames for a new reference gesture.
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CountingDown:
		return "counting_down"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, CountingDown, Capturing} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown capture state %q", text)
}

// Config holds the live buffer settings.
type Config struct {
	// MaxSize is the number of retained frames before sliding or auto-commit.
	MaxSize int `yaml:"max_size" split_words:"true"`
	// Decimation retains only every Nth valid frame.
	Decimation int `yaml:"decimation" split_words:"true"`
	// Countdown is the delay between a capture request and recording.
	Countdown time.Duration `yaml:"countdown" split_words:"true"`
}

// DefaultConfig returns the default buffer settings.
func DefaultConfig() Config {
	return Config{
		MaxSize:    DefaultMaxSize,
		Decimation: DefaultDecimation,
		Countdown:  DefaultCountdown,
	}
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.MaxSize <= 0:
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, c.MaxSize)
	case c.Decimation <= 0:
		return fmt.Errorf("%w: decimation must be positive, got %d", ErrInvalidConfig, c.Decimation)
	case c.Countdown < 0:
		return fmt.Errorf("%w: countdown must not be negative, got %s", ErrInvalidConfig, c.Countdown)
	}
	return nil
}

// Committer stores a captured sequence under a gesture name.
type Committer interface {
	AddOrUpdate(seq gesture.Sequence, name string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for the countdown.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns the live frame buffer and the capture state machine.
// It is not safe for concurrent use; callers serialize access.
type Manager struct {
	config    Config
	dimension int
	committer Committer
	now       func() time.Time

	frames   gesture.Sequence
	state    State
	name     string
	deadline time.Time
	counter  int

	// OnStateChange is called after every state transition.
	OnStateChange func(from, to State)
	// OnCommit is called after a sequence has been committed.
	OnCommit func(name string, frames int)
}

// NewManager creates a Manager for frames of the given dimension.
func NewManager(cfg Config, dimension int, committer Committer, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}
	if committer == nil {
		return nil, fmt.Errorf("%w: nil committer", ErrInvalidConfig)
	}

	m := &Manager{
		config:    cfg,
		dimension: dimension,
		committer: committer,
		now:       time.Now,
		frames:    make(gesture.Sequence, 0, cfg.MaxSize+1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Append offers a frame to the buffer. Frames with non-finite values or the
// wrong dimension are rejected without touching the buffer. Valid frames are
// decimated; a retained frame that overflows the buffer evicts the oldest
// frame, or commits the whole buffer while capturing.
//
// It returns whether the frame was retained. A non-nil error with a retained
// frame reports a failed auto-commit; the capture continues with the oldest
// frame dropped, so the buffer never exceeds MaxSize.
func (m *Manager) Append(frame gesture.Frame) (bool, error) {
	m.Advance(m.now())

	if len(frame) != m.dimension {
		return false, gesture.ErrDimensionMismatch
	}
	if !frame.Finite() {
		return false, gesture.ErrNonFiniteFrame
	}

	m.counter = (m.counter + 1) % m.config.Decimation
	if m.counter != 0 {
		return false, nil
	}

	m.frames = append(m.frames, frame.Clone())

	if len(m.frames) <= m.config.MaxSize {
		return true, nil
	}

	if m.state == Capturing {
		err := m.Commit()
		if err != nil {
			// Still capturing: keep the newest MaxSize frames for the next attempt
			m.slide()
		}
		return true, err
	}

	m.slide()
	return true, nil
}

// slide drops the oldest frame.
func (m *Manager) slide() {
	copy(m.frames, m.frames[1:])
	m.frames[len(m.frames)-1] = nil
	m.frames = m.frames[:len(m.frames)-1]
}

// StartCountdown begins the countdown before capturing under name.
func (m *Manager) StartCountdown(name string) error {
	if err := gesture.ValidateName(name); err != nil {
		return err
	}
	m.name = name
	m.deadline = m.now().Add(m.config.Countdown)
	m.setState(CountingDown)
	m.Advance(m.now())
	return nil
}

// StartCapture begins capturing under name immediately.
func (m *Manager) StartCapture(name string) error {
	if err := gesture.ValidateName(name); err != nil {
		return err
	}
	m.name = name
	m.beginCapture()
	return nil
}

// Tick advances the countdown using the manager's clock.
func (m *Manager) Tick() {
	m.Advance(m.now())
}

// Advance moves from CountingDown to Capturing once now reaches the deadline.
func (m *Manager) Advance(now time.Time) {
	if m.state != CountingDown {
		return
	}
	if now.Before(m.deadline) {
		return
	}
	m.beginCapture()
}

// Commit stores the captured buffer under the selected name, clears the
// buffer and returns to Idle.
func (m *Manager) Commit() error {
	if m.state != Capturing {
		return ErrNotCapturing
	}
	if len(m.frames) == 0 {
		return ErrEmptyBuffer
	}

	seq := m.frames
	name := m.name
	if err := m.committer.AddOrUpdate(seq, name); err != nil {
		return fmt.Errorf("commit %q: %w", name, err)
	}

	m.Clear()
	m.name = ""
	m.setState(Idle)

	if m.OnCommit != nil {
		m.OnCommit(name, len(seq))
	}
	return nil
}

// Read returns to Idle without committing, cancelling any countdown or capture.
func (m *Manager) Read() {
	if m.state == Idle {
		return
	}
	m.name = ""
	m.setState(Idle)
}

// Clear drops every buffered frame.
func (m *Manager) Clear() {
	m.frames = make(gesture.Sequence, 0, m.config.MaxSize+1)
}

// Snapshot returns the buffered frames, oldest first. The returned sequence
// is not modified by later calls.
func (m *Manager) Snapshot() gesture.Sequence {
	out := make(gesture.Sequence, len(m.frames))
	copy(out, m.frames)
	return out
}

// Len returns the number of buffered frames.
func (m *Manager) Len() int {
	return len(m.frames)
}

// State returns the current workflow state.
func (m *Manager) State() State {
	return m.state
}

// Name returns the gesture name selected for capture.
func (m *Manager) Name() string {
	return m.name
}

// Remaining returns the time left on the countdown.
func (m *Manager) Remaining() time.Duration {
	if m.state != CountingDown {
		return 0
	}
	if d := m.deadline.Sub(m.now()); d > 0 {
		return d
	}
	return 0
}

// Config returns the buffer settings.
func (m *Manager) Config() Config {
	return m.config
}

// beginCapture switches to Capturing with an empty buffer.
func (m *Manager) beginCapture() {
	m.Clear()
	m.setState(Capturing)
}

func (m *Manager) setState(to State) {
	from := m.state
	m.state = to
	if from != to && m.OnStateChange != nil {
		m.OnStateChange(from, to)
	}
}
