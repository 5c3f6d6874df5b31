// Package app wires the live buffer, the recognizer and the notifiers into a
// recognition session fed one frame at a time.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/notify"
	"github.com/ayusman/mudra/internal/store"
)

// ErrNoStore is returned by store operations on a session without a store.
var ErrNoStore = errors.New("no store configured")

// Config holds the session parameters.
type Config struct {
	Recognizer gesture.Config
	Buffer     capture.Config
}

// DefaultConfig returns the default recognizer and buffer settings.
func DefaultConfig() Config {
	return Config{
		Recognizer: gesture.DefaultConfig(),
		Buffer:     capture.DefaultConfig(),
	}
}

// Option configures a Session.
type Option func(*Session)

// WithStore persists committed gestures and trained samples.
func WithStore(s *store.Store) Option {
	return func(sess *Session) {
		sess.store = s
	}
}

// WithNotifier receives match, state and commit events. Notify is called
// while the session is locked, so slow notifiers belong behind a
// notify.Fanout.
func WithNotifier(n notify.Notifier) Option {
	return func(sess *Session) {
		sess.notifier = n
	}
}

// WithClock replaces time.Now for the capture countdown and event times.
func WithClock(now func() time.Time) Option {
	return func(sess *Session) {
		sess.now = now
	}
}

// Session is a recognition session over a gesture library. All frame and
// capture calls are serialized; the library may be read concurrently.
type Session struct {
	mu sync.Mutex

	library    *gesture.Library
	recognizer *gesture.Recognizer
	buffer     *capture.Manager
	store      *store.Store
	notifier   notify.Notifier
	now        func() time.Time
	budget     time.Duration
	last       gesture.Result
}

// New creates a Session recognizing against lib.
func New(lib *gesture.Library, cfg Config, opts ...Option) (*Session, error) {
	rec, err := gesture.NewRecognizer(lib, cfg.Recognizer)
	if err != nil {
		return nil, err
	}

	s := &Session{
		library:    lib,
		recognizer: rec,
		now:        time.Now,
		budget:     cfg.Recognizer.FrameBudget,
	}
	for _, opt := range opts {
		opt(s)
	}

	buf, err := capture.NewManager(cfg.Buffer, lib.Dimension(), committer{s}, capture.WithClock(s.now))
	if err != nil {
		return nil, err
	}
	buf.OnStateChange = s.stateChanged
	buf.OnCommit = s.committed
	s.buffer = buf

	return s, nil
}

// Library returns the gesture library.
func (s *Session) Library() *gesture.Library {
	return s.library
}

// Recognizer returns the recognizer.
func (s *Session) Recognizer() *gesture.Recognizer {
	return s.recognizer
}

// Store returns the configured store, or nil.
func (s *Session) Store() *store.Store {
	return s.store
}

// Status describes the capture workflow.
type Status struct {
	State       capture.State  `json:"state"`
	Name        string         `json:"name,omitempty"`
	Frames      int            `json:"frames"`
	RemainingMs int64          `json:"remaining_ms"`
	Gestures    int            `json:"gestures"`
	Last        gesture.Result `json:"last"`
}

// Status returns the current capture state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		State:       s.buffer.State(),
		Name:        s.buffer.Name(),
		Frames:      s.buffer.Len(),
		RemainingMs: s.buffer.Remaining().Milliseconds(),
		Gestures:    s.library.Len(),
		Last:        s.last,
	}
}

// StartCountdown selects name and starts the countdown before capturing.
func (s *Session) StartCountdown(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.StartCountdown(name)
}

// StartCapture selects name and starts capturing immediately.
func (s *Session) StartCapture(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.StartCapture(name)
}

// Commit stores the captured frames under the selected name.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Commit()
}

// Read cancels any countdown or capture and returns to recognition.
func (s *Session) Read() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Read()
}

// Tick advances the capture countdown.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Tick()
}

// Train averages samples into a reference sequence and stores it under name.
// With a store, the raw samples are kept alongside the gesture.
func (s *Session) Train(name string, samples []gesture.Sequence) (gesture.Sequence, error) {
	seq, err := gesture.NewTrainer(s.library.Dimension()).Average(samples)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := (committer{s}).AddOrUpdate(seq, name); err != nil {
		return nil, err
	}

	if s.store != nil {
		g, err := s.store.Gestures().GetByName(name)
		if err != nil {
			return nil, err
		}
		if err := s.store.Samples().Create(g.ID, samples); err != nil {
			return nil, fmt.Errorf("store samples: %w", err)
		}
	}
	return seq, nil
}

// Import replaces the library with the gestures in data, given in the
// gesture file format.
func (s *Session) Import(ctx context.Context, data []byte) error {
	scratch, err := gesture.NewLibrary(s.library.Dimension())
	if err != nil {
		return err
	}
	if err := scratch.UnmarshalText(data); err != nil {
		return err
	}
	return s.replace(ctx, scratch.Entries())
}

// LoadFile replaces the library with the gestures in path.
func (s *Session) LoadFile(ctx context.Context, path string) error {
	scratch, err := gesture.NewLibrary(s.library.Dimension())
	if err != nil {
		return err
	}
	if err := scratch.LoadFile(path); err != nil {
		return err
	}
	if err := s.replace(ctx, scratch.Entries()); err != nil {
		return err
	}
	logging.FromContext(ctx).Infow("loaded gesture file", "path", path, "gestures", scratch.Len())
	return nil
}

// replace swaps in validated entries. With a store, the store is replaced
// first so that a failed write leaves both the store and the library unchanged.
func (s *Session) replace(ctx context.Context, entries []gesture.Entry) error {
	if s.store != nil {
		if err := s.store.Gestures().ReplaceAll(entries); err != nil {
			return fmt.Errorf("sync gestures: %w", err)
		}
	}
	if err := s.library.Replace(entries); err != nil {
		return err
	}
	logging.FromContext(ctx).Debugw("replaced library", "gestures", len(entries), "stored", s.store != nil)
	return nil
}

// SaveFile writes the library to path.
func (s *Session) SaveFile(ctx context.Context, path string) error {
	if err := s.library.SaveFile(path); err != nil {
		return err
	}
	logging.FromContext(ctx).Infow("saved gesture file", "path", path, "gestures", s.library.Len())
	return nil
}

// LoadStore replaces the library with the gestures in the store.
func (s *Session) LoadStore(ctx context.Context) error {
	if s.store == nil {
		return ErrNoStore
	}

	entries, err := s.store.Gestures().Load()
	if err != nil {
		return fmt.Errorf("load gestures: %w", err)
	}
	if err := s.library.Replace(entries); err != nil {
		return err
	}

	logging.FromContext(ctx).Infow("loaded gestures from store", "gestures", len(entries))
	return nil
}

func (s *Session) emit(ev notify.Event) {
	if s.notifier == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}

	ctx := context.Background()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		logging.FromContext(ctx).Warnw("notify failed", "kind", ev.Kind, "error", err)
	}
}

func (s *Session) stateChanged(from, to capture.State) {
	logging.DefaultLogger().Debugw("capture state changed", "from", from, "to", to, "name", s.buffer.Name())
	s.emit(notify.Event{Kind: notify.KindState, Gesture: s.buffer.Name(), State: to.String()})
}

func (s *Session) committed(name string, frames int) {
	logging.DefaultLogger().Infow("gesture recorded", "name", name, "frames", frames)
	s.emit(notify.Event{Kind: notify.KindCommit, Gesture: name, Frames: frames})
}

// committer stores captured sequences in the library, and in the store
// first when one is configured.
type committer struct {
	s *Session
}

func (c committer) AddOrUpdate(seq gesture.Sequence, name string) error {
	if err := gesture.ValidateName(name); err != nil {
		return err
	}
	if err := seq.Validate(c.s.library.Dimension()); err != nil {
		return err
	}

	if c.s.store != nil {
		if _, err := c.s.store.Gestures().Save(name, seq); err != nil {
			return fmt.Errorf("store gesture: %w", err)
		}
	}
	return c.s.library.AddOrUpdate(seq, name)
}
