package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mudra",
	Short: "Mudra - skeleton gesture recognition",
	Long: `Mudra recognizes recorded body gestures in a live stream of skeleton
feature frames using dynamic time warping.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd, recognizeCmd, importCmd, exportCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the configuration and returns a context carrying the logger.
func setup(ctx context.Context) (context.Context, *config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	return logging.WithLogger(ctx, logger), cfg, logger, nil
}

// openStore opens the configured database, creating its directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// loadLibrary fills the session from the library file when one is configured
// and exists, otherwise from the store. A file load is mirrored into the store.
func loadLibrary(ctx context.Context, sess *app.Session, file string) error {
	if file != "" {
		_, err := os.Stat(file)
		switch {
		case err == nil:
			return sess.LoadFile(ctx, file)
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
		logging.FromContext(ctx).Infow("gesture file does not exist yet", "path", file)
	}

	if sess.Store() == nil {
		return nil
	}
	return sess.LoadStore(ctx)
}

func newSession(cfg *config.Config, opts ...app.Option) (*app.Session, error) {
	lib, err := gesture.NewLibrary(cfg.Recognizer.Dimension)
	if err != nil {
		return nil, err
	}
	return app.New(lib, app.Config{Recognizer: cfg.Recognizer, Buffer: cfg.Buffer}, opts...)
}
