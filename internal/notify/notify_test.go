package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestFanout_DeliversInOrder(t *testing.T) {
	first := &recorder{}
	failing := &recorder{err: errors.New("boom")}
	last := &recorder{}

	f := NewFanout(context.Background(), 8, first, failing, last)
	for _, name := range []string{"a", "b", "c"} {
		require.True(t, f.Publish(Event{Kind: KindMatch, Gesture: name}))
	}
	f.Close()

	for _, r := range []*recorder{first, failing, last} {
		events := r.Events()
		require.Len(t, events, 3)
		assert.Equal(t, "a", events[0].Gesture)
		assert.Equal(t, "c", events[2].Gesture)
		assert.False(t, events[0].Time.IsZero(), "publish should stamp the time")
	}
}

func TestFanout_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	blocked := NotifierFunc(func(context.Context, Event) error {
		<-release
		return nil
	})

	f := NewFanout(context.Background(), 1, blocked)

	// One event is held by the worker and one fills the queue.
	accepted := 0
	for i := 0; i < 10; i++ {
		if f.Publish(Event{Kind: KindState}) {
			accepted++
		}
	}
	close(release)
	f.Close()

	assert.LessOrEqual(t, accepted, 2)
	assert.Equal(t, int64(10-accepted), f.Dropped())
}

func TestFanout_PublishAfterClose(t *testing.T) {
	f := NewFanout(context.Background(), 0)
	f.Close()
	f.Close()

	assert.False(t, f.Publish(Event{Kind: KindMatch}))
}

type fakePlugins map[string]*plugin.Plugin

func (f fakePlugins) Get(name string) (*plugin.Plugin, error) {
	p, ok := f[name]
	if !ok {
		return nil, plugin.ErrPluginNotFound
	}
	return p, nil
}

type fakeRunner struct {
	requests []plugin.Request
	plugins  []string
	response *plugin.Response
	err      error
}

func (r *fakeRunner) Execute(_ context.Context, p *plugin.Plugin, req *plugin.Request) (*plugin.Response, error) {
	r.plugins = append(r.plugins, p.Manifest.Name)
	r.requests = append(r.requests, *req)
	if r.err != nil {
		return nil, r.err
	}
	if r.response != nil {
		return r.response, nil
	}
	return &plugin.Response{Success: true}, nil
}

type fakeActions map[string][]*store.Action

func (f fakeActions) ListByGesture(name string) ([]*store.Action, error) {
	return f[name], nil
}

func installed(names ...string) fakePlugins {
	plugins := fakePlugins{}
	for _, name := range names {
		plugins[name] = &plugin.Plugin{Manifest: plugin.Manifest{Name: name, Actions: []string{plugin.ActionAnnounce}}}
	}
	return plugins
}

func TestAnnouncer_DefaultPlugin(t *testing.T) {
	runner := &fakeRunner{}
	a := NewAnnouncer(installed("speak"), runner, nil, "speak")

	err := a.Notify(context.Background(), Event{Kind: KindMatch, Gesture: "hello", Distance: 0.2})
	require.NoError(t, err)

	require.Len(t, runner.requests, 1)
	assert.Equal(t, "speak", runner.plugins[0])
	assert.Equal(t, plugin.Request{Action: plugin.ActionAnnounce, Gesture: "hello", Distance: 0.2}, runner.requests[0])
}

func TestAnnouncer_IgnoresOtherEvents(t *testing.T) {
	runner := &fakeRunner{}
	a := NewAnnouncer(installed("speak"), runner, nil, "speak")

	require.NoError(t, a.Notify(context.Background(), Event{Kind: KindState, State: "capturing"}))
	require.NoError(t, a.Notify(context.Background(), Event{Kind: KindMatch}))
	assert.Empty(t, runner.requests)
}

func TestAnnouncer_MissingDefaultPluginIsQuiet(t *testing.T) {
	runner := &fakeRunner{}
	a := NewAnnouncer(installed(), runner, nil, "speak")

	require.NoError(t, a.Notify(context.Background(), Event{Kind: KindMatch, Gesture: "hello"}))
	assert.Empty(t, runner.requests)
}

func TestAnnouncer_BoundActions(t *testing.T) {
	runner := &fakeRunner{}
	actions := fakeActions{
		"wave": {
			{PluginName: "lights", ActionName: "toggle", Config: json.RawMessage(`{"room":"hall"}`), Enabled: true},
			{PluginName: "speak", ActionName: plugin.ActionAnnounce, Enabled: false},
		},
	}
	a := NewAnnouncer(installed("speak", "lights"), runner, actions, "speak")

	require.NoError(t, a.Notify(context.Background(), Event{Kind: KindMatch, Gesture: "wave", Distance: 0.1}))

	require.Len(t, runner.requests, 1, "disabled bindings and the default plugin are skipped")
	assert.Equal(t, "lights", runner.plugins[0])
	assert.Equal(t, "toggle", runner.requests[0].Action)
	assert.JSONEq(t, `{"room":"hall"}`, string(runner.requests[0].Config))
}

func TestAnnouncer_CollectsFailures(t *testing.T) {
	runner := &fakeRunner{response: &plugin.Response{Success: false, Error: "no audio device"}}
	actions := fakeActions{
		"wave": {
			{PluginName: "missing", ActionName: "run", Enabled: true},
			{PluginName: "speak", ActionName: plugin.ActionAnnounce, Enabled: true},
		},
	}
	a := NewAnnouncer(installed("speak"), runner, actions, "")

	err := a.Notify(context.Background(), Event{Kind: KindMatch, Gesture: "wave"})
	require.Error(t, err)
	assert.ErrorIs(t, err, plugin.ErrPluginNotFound)
	assert.Contains(t, err.Error(), "no audio device")
	assert.Len(t, runner.requests, 1)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	messages []published
	err      error
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, payload: payload.([]byte)})
	return newFakeToken(c.err)
}

func TestMQTTPublisher_Topics(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, "home/mudra")

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Notify(context.Background(), Event{Kind: KindMatch, Gesture: "hello", Distance: 0.25, Time: now}))
	require.NoError(t, p.Notify(context.Background(), Event{Kind: KindState, State: "capturing", Time: now}))

	require.Len(t, client.messages, 2)
	assert.Equal(t, "home/mudra/match", client.messages[0].topic)
	assert.Equal(t, "home/mudra/state", client.messages[1].topic)

	var ev Event
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &ev))
	assert.Equal(t, "hello", ev.Gesture)
	assert.Equal(t, 0.25, ev.Distance)
	assert.True(t, now.Equal(ev.Time))
}

func TestMQTTPublisher_DefaultPrefixAndErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := newMQTTPublisher(client, "")

	assert.Equal(t, "mudra/commit", p.Topic(KindCommit))
	assert.EqualError(t, p.Notify(context.Background(), Event{Kind: KindCommit}), "not connected")
	p.Close()
}
