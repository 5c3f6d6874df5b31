package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// ActionLister returns the plugin actions bound to a gesture.
type ActionLister interface {
	ListByGesture(name string) ([]*store.Action, error)
}

// PluginSource looks up discovered plugins by name.
type PluginSource interface {
	Get(name string) (*plugin.Plugin, error)
}

// Runner executes a plugin request.
type Runner interface {
	Execute(ctx context.Context, p *plugin.Plugin, req *plugin.Request) (*plugin.Response, error)
}

// Announcer runs plugin actions for matched gestures. Gestures with enabled
// bindings run those; every other gesture runs the announce action of the
// default plugin, if one is configured and installed.
type Announcer struct {
	plugins       PluginSource
	runner        Runner
	actions       ActionLister
	defaultPlugin string
}

// NewAnnouncer creates an Announcer. actions may be nil when no store is
// configured, and defaultPlugin may be empty to stay silent for unbound
// gestures.
func NewAnnouncer(plugins PluginSource, runner Runner, actions ActionLister, defaultPlugin string) *Announcer {
	return &Announcer{
		plugins:       plugins,
		runner:        runner,
		actions:       actions,
		defaultPlugin: defaultPlugin,
	}
}

// Notify runs the actions for KindMatch events and ignores the rest.
func (a *Announcer) Notify(ctx context.Context, ev Event) error {
	if ev.Kind != KindMatch || ev.Gesture == "" {
		return nil
	}

	bound, err := a.bound(ev.Gesture)
	if err != nil {
		return fmt.Errorf("list actions for %q: %w", ev.Gesture, err)
	}

	if len(bound) == 0 {
		return a.announceDefault(ctx, ev)
	}

	var errs error
	for _, action := range bound {
		req := &plugin.Request{
			Action:   action.ActionName,
			Gesture:  ev.Gesture,
			Distance: ev.Distance,
			Config:   action.Config,
		}
		errs = multierr.Append(errs, a.run(ctx, action.PluginName, req))
	}
	return errs
}

func (a *Announcer) bound(name string) ([]*store.Action, error) {
	if a.actions == nil {
		return nil, nil
	}

	actions, err := a.actions.ListByGesture(name)
	if err != nil {
		return nil, err
	}

	var enabled []*store.Action
	for _, action := range actions {
		if action.Enabled {
			enabled = append(enabled, action)
		}
	}
	return enabled, nil
}

func (a *Announcer) announceDefault(ctx context.Context, ev Event) error {
	if a.defaultPlugin == "" {
		return nil
	}

	err := a.run(ctx, a.defaultPlugin, &plugin.Request{
		Action:   plugin.ActionAnnounce,
		Gesture:  ev.Gesture,
		Distance: ev.Distance,
	})
	if errors.Is(err, plugin.ErrPluginNotFound) {
		logging.FromContext(ctx).Debugw("announce plugin not installed", "plugin", a.defaultPlugin)
		return nil
	}
	return err
}

func (a *Announcer) run(ctx context.Context, name string, req *plugin.Request) error {
	p, err := a.plugins.Get(name)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", name, err)
	}

	resp, err := a.runner.Execute(ctx, p, req)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", name, err)
	}
	if !resp.Success {
		return fmt.Errorf("plugin %s: action %s failed: %s", name, req.Action, resp.Error)
	}

	logging.FromContext(ctx).Debugw("plugin action done", "plugin", name, "action", req.Action, "gesture", req.Gesture)
	return nil
}
