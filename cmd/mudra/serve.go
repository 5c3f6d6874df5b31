package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/notify"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/sensor"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/watch"
)

var (
	serveAddr    string
	serveStdin   bool
	serveTracker string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and recognize pushed frames",
	Long: `Run the HTTP API. Frames arrive through POST /api/frames, or from
standard input with --stdin, or from a tracker process with --tracker. Frames
are one per line: numbers separated by commas or spaces, or a JSON skeleton.
Matches are announced through plugins, websocket clients and MQTT.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveStdin, "stdin", false, "also read frames from standard input")
	serveCmd.Flags().StringVar(&serveTracker, "tracker", "", "tracker command printing frames (overrides tracker.command)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cfg, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("tracker") {
		cfg.Tracker.Command, cfg.Tracker.Args, err = parseTracker(serveTracker)
		if err != nil {
			return err
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	events := server.NewEventsHandler()
	notifiers := []notify.Notifier{events, newAnnouncer(ctx, cfg, st)}

	if cfg.MQTT.Broker != "" {
		pub, err := notify.NewMQTTPublisher(ctx, notify.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}

	fanout := notify.NewFanout(ctx, notify.DefaultQueueSize, notifiers...)
	defer fanout.Close()

	opts := []app.Option{app.WithNotifier(fanout)}
	if st != nil {
		opts = append(opts, app.WithStore(st))
	}
	sess, err := newSession(cfg, opts...)
	if err != nil {
		return err
	}
	if err := loadLibrary(ctx, sess, cfg.Library.File); err != nil {
		return err
	}

	if cfg.Library.Watch {
		go watchLibrary(ctx, sess, cfg.Library.File, cfg.Library.Debounce)
	}

	go tick(ctx, sess)

	if serveStdin {
		go runSource(ctx, sess, "stdin", sensor.NewLineSource(os.Stdin))
	}
	if cfg.Tracker.Command != "" {
		tracker := sensor.NewProcessSource(cfg.Tracker.Command, cfg.Tracker.Args...)
		defer tracker.Close()
		go runSource(ctx, sess, cfg.Tracker.Command, tracker)
	}

	srv := server.New(server.Config{
		StaticDir: cfg.Server.StaticDir,
		Session:   sess,
		Events:    events,
		Logger:    logger,
	})
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// parseTracker splits a --tracker value into the command and its arguments.
func parseTracker(s string) (string, []string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", nil, errors.New("--tracker: empty command")
	}
	return fields[0], fields[1:], nil
}

// newAnnouncer discovers plugins and routes matches to their actions.
func newAnnouncer(ctx context.Context, cfg *config.Config, st *store.Store) *notify.Announcer {
	manager := plugin.NewManager(cfg.Plugins.Dir)
	if err := manager.Discover(ctx); err != nil {
		logging.FromContext(ctx).Warnw("plugin discovery failed", "dir", cfg.Plugins.Dir, "error", err)
	}

	var actions notify.ActionLister
	if st != nil {
		actions = st.Actions()
	}
	return notify.NewAnnouncer(manager, plugin.NewExecutor(cfg.Plugins.Timeout), actions, cfg.Plugins.Announce)
}

// watchLibrary reloads the gesture file when it changes. A file that fails to
// parse leaves the current library in place.
func watchLibrary(ctx context.Context, sess *app.Session, path string, debounce time.Duration) {
	logger := logging.FromContext(ctx)

	err := watch.File(ctx, path, debounce, func() {
		if err := sess.LoadFile(ctx, path); err != nil {
			logger.Warnw("gesture file reload failed", "path", path, "error", err)
		}
	})
	if err != nil {
		logger.Errorw("gesture file watch stopped", "path", path, "error", err)
	}
}

func runSource(ctx context.Context, sess *app.Session, name string, src sensor.Source) {
	logger := logging.FromContext(ctx)
	if err := sess.Run(ctx, src); err != nil {
		logger.Errorw("frame source stopped", "source", name, "error", err)
		return
	}
	logger.Infow("frame source finished", "source", name)
}

// tick advances the capture countdown while frames are pushed over HTTP.
func tick(ctx context.Context, sess *app.Session) {
	ticker := time.NewTicker(app.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess.Tick()
		}
	}
}
