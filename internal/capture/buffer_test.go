package capture

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/gesture"
)

type commit struct {
	name string
	seq  gesture.Sequence
}

type recordingCommitter struct {
	commits []commit
	err     error
}

func (c *recordingCommitter) AddOrUpdate(seq gesture.Sequence, name string) error {
	if c.err != nil {
		return c.err
	}
	c.commits = append(c.commits, commit{name: name, seq: seq.Clone()})
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time      { return c.t }
func (c *fakeClock) Add(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func frame(v float64) gesture.Frame { return gesture.Frame{v, v} }

func values(seq gesture.Sequence) []float64 {
	out := make([]float64, len(seq))
	for i, f := range seq {
		out[i] = f[0]
	}
	return out
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *recordingCommitter, *fakeClock) {
	t.Helper()
	committer := &recordingCommitter{}
	clock := newFakeClock()
	m, err := NewManager(cfg, 2, committer, WithClock(clock.Now))
	require.NoError(t, err)
	return m, committer, clock
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []Config{
		{MaxSize: 0, Decimation: 1},
		{MaxSize: 4, Decimation: 0},
		{MaxSize: 4, Decimation: 1, Countdown: -time.Second},
	}
	for _, cfg := range bad {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "config %+v", cfg)
	}
}

func TestNewManager_Rejects(t *testing.T) {
	_, err := NewManager(DefaultConfig(), 0, &recordingCommitter{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(DefaultConfig(), 2, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(Config{}, 2, &recordingCommitter{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestManager_Decimation(t *testing.T) {
	m, _, _ := newTestManager(t, Config{MaxSize: 10, Decimation: 2})

	var kept []bool
	for i := 0; i < 4; i++ {
		ok, err := m.Append(frame(float64(i)))
		require.NoError(t, err)
		kept = append(kept, ok)
	}

	assert.Equal(t, []bool{false, true, false, true}, kept)
	assert.Equal(t, []float64{1, 3}, values(m.Snapshot()))
}

func TestManager_RejectsInvalidFrames(t *testing.T) {
	m, _, _ := newTestManager(t, Config{MaxSize: 10, Decimation: 2})

	ok, err := m.Append(frame(1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Append(gesture.Frame{math.NaN(), 0})
	assert.ErrorIs(t, err, gesture.ErrNonFiniteFrame)
	assert.False(t, ok)

	ok, err = m.Append(gesture.Frame{0, math.Inf(-1)})
	assert.ErrorIs(t, err, gesture.ErrNonFiniteFrame)
	assert.False(t, ok)

	ok, err = m.Append(gesture.Frame{1, 2, 3})
	assert.ErrorIs(t, err, gesture.ErrDimensionMismatch)
	assert.False(t, ok)

	// Rejected frames do not count towards decimation.
	ok, err = m.Append(frame(2))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{2}, values(m.Snapshot()))
}

func TestManager_SlidesWhenIdle(t *testing.T) {
	m, committer, _ := newTestManager(t, Config{MaxSize: 3, Decimation: 1})

	for i := 0; i < 7; i++ {
		ok, err := m.Append(frame(float64(i)))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.LessOrEqual(t, m.Len(), 3)
	}

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []float64{4, 5, 6}, values(m.Snapshot()))
	assert.Empty(t, committer.commits)
	assert.Equal(t, Idle, m.State())
}

func TestManager_AutoCommitOnOverflow(t *testing.T) {
	m, committer, _ := newTestManager(t, Config{MaxSize: 3, Decimation: 1})

	var commits []string
	m.OnCommit = func(name string, frames int) {
		commits = append(commits, name)
		assert.Equal(t, 4, frames)
	}

	require.NoError(t, m.StartCapture("wave"))
	for i := 0; i < 4; i++ {
		_, err := m.Append(frame(float64(i)))
		require.NoError(t, err)
	}

	require.Len(t, committer.commits, 1)
	assert.Equal(t, "wave", committer.commits[0].name)
	assert.Equal(t, []float64{0, 1, 2, 3}, values(committer.commits[0].seq))
	assert.Equal(t, []string{"wave"}, commits)

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, Idle, m.State())
	assert.Empty(t, m.Name())
}

func TestManager_Countdown(t *testing.T) {
	m, _, clock := newTestManager(t, Config{MaxSize: 10, Decimation: 1, Countdown: 3 * time.Second})

	var transitions []State
	m.OnStateChange = func(from, to State) {
		transitions = append(transitions, to)
	}

	require.NoError(t, m.StartCountdown("hello"))
	assert.Equal(t, CountingDown, m.State())
	assert.Equal(t, "hello", m.Name())
	assert.Equal(t, 3*time.Second, m.Remaining())

	_, err := m.Append(frame(1))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	clock.Add(2 * time.Second)
	m.Tick()
	assert.Equal(t, CountingDown, m.State())
	assert.Equal(t, time.Second, m.Remaining())

	clock.Add(time.Second)
	m.Tick()
	assert.Equal(t, Capturing, m.State())
	assert.Equal(t, 0, m.Len(), "buffer cleared on entering capture")
	assert.Zero(t, m.Remaining())

	assert.Equal(t, []State{CountingDown, Capturing}, transitions)
}

func TestManager_CountdownExpiresOnAppend(t *testing.T) {
	m, _, clock := newTestManager(t, Config{MaxSize: 10, Decimation: 1, Countdown: time.Second})

	require.NoError(t, m.StartCountdown("hello"))
	_, err := m.Append(frame(1))
	require.NoError(t, err)

	clock.Add(time.Second)
	_, err = m.Append(frame(2))
	require.NoError(t, err)

	assert.Equal(t, Capturing, m.State())
	assert.Equal(t, []float64{2}, values(m.Snapshot()))
}

func TestManager_ZeroCountdown(t *testing.T) {
	m, _, _ := newTestManager(t, Config{MaxSize: 10, Decimation: 1})

	require.NoError(t, m.StartCountdown("now"))
	assert.Equal(t, Capturing, m.State())
}

func TestManager_StartRequiresName(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig())

	assert.ErrorIs(t, m.StartCountdown(""), gesture.ErrEmptyName)
	assert.ErrorIs(t, m.StartCapture(""), gesture.ErrEmptyName)
	assert.Equal(t, Idle, m.State())
}

func TestManager_Commit(t *testing.T) {
	m, committer, _ := newTestManager(t, Config{MaxSize: 10, Decimation: 1})

	assert.ErrorIs(t, m.Commit(), ErrNotCapturing)

	require.NoError(t, m.StartCapture("push"))
	assert.ErrorIs(t, m.Commit(), ErrEmptyBuffer)
	assert.Equal(t, Capturing, m.State())

	for i := 0; i < 3; i++ {
		_, err := m.Append(frame(float64(i)))
		require.NoError(t, err)
	}
	require.NoError(t, m.Commit())

	require.Len(t, committer.commits, 1)
	assert.Equal(t, "push", committer.commits[0].name)
	assert.Equal(t, 3, len(committer.commits[0].seq))
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 0, m.Len())
}

func TestManager_CommitFailureKeepsCapture(t *testing.T) {
	m, committer, _ := newTestManager(t, Config{MaxSize: 10, Decimation: 1})
	committer.err = errors.New("disk full")

	require.NoError(t, m.StartCapture("push"))
	_, err := m.Append(frame(1))
	require.NoError(t, err)

	err = m.Commit()
	assert.ErrorIs(t, err, committer.err)
	assert.Equal(t, Capturing, m.State())
	assert.Equal(t, 1, m.Len())
}

func TestManager_AutoCommitFailureStaysBounded(t *testing.T) {
	m, committer, _ := newTestManager(t, Config{MaxSize: 4, Decimation: 1})
	committer.err = errors.New("disk full")

	require.NoError(t, m.StartCapture("wave"))

	failures := 0
	for i := 1; i <= 100; i++ {
		retained, err := m.Append(frame(float64(i)))
		require.True(t, retained)
		if err != nil {
			assert.ErrorIs(t, err, committer.err)
			failures++
		}
		require.LessOrEqual(t, m.Len(), 4)
	}

	assert.Equal(t, 96, failures)
	assert.Equal(t, Capturing, m.State())
	assert.Equal(t, []float64{97, 98, 99, 100}, values(m.Snapshot()))

	// Once the store recovers the next overflow commits the newest frames
	committer.err = nil
	_, err := m.Append(frame(101))
	require.NoError(t, err)
	require.Len(t, committer.commits, 1)
	assert.Equal(t, []float64{97, 98, 99, 100, 101}, values(committer.commits[0].seq))
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 0, m.Len())
}

func TestManager_ReadCancels(t *testing.T) {
	m, committer, _ := newTestManager(t, Config{MaxSize: 10, Decimation: 1, Countdown: time.Minute})

	require.NoError(t, m.StartCountdown("wave"))
	m.Read()
	assert.Equal(t, Idle, m.State())
	assert.Empty(t, m.Name())

	require.NoError(t, m.StartCapture("wave"))
	_, err := m.Append(frame(1))
	require.NoError(t, err)
	m.Read()

	assert.Equal(t, Idle, m.State())
	assert.Empty(t, committer.commits)
}

func TestManager_SnapshotIsIndependent(t *testing.T) {
	m, _, _ := newTestManager(t, Config{MaxSize: 2, Decimation: 1})

	_, _ = m.Append(frame(1))
	_, _ = m.Append(frame(2))
	snap := m.Snapshot()

	_, _ = m.Append(frame(3))
	assert.Equal(t, []float64{1, 2}, values(snap))

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Len(t, snap, 2)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "counting_down", CountingDown.String())
	assert.Equal(t, "capturing", Capturing.String())

	text, err := Capturing.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "capturing", string(text))
}

func TestState_UnmarshalText(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("counting_down")))
	assert.Equal(t, CountingDown, s)

	assert.Error(t, s.UnmarshalText([]byte("paused")))
	assert.Equal(t, CountingDown, s)
}
