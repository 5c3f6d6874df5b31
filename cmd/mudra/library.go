package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <gesture-file>",
	Short: "Replace the stored gestures with a gesture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer logger.Sync()

		sess, st, err := storeSession(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := sess.LoadFile(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d gestures\n", sess.Library().Len())
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [gesture-file]",
	Short: "Write the stored gestures to a gesture file",
	Long: `Write the stored gestures to a gesture file. Without a file name the
export is written to a timestamped RecordedGestures file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer logger.Sync()

		sess, st, err := storeSession(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := sess.LoadStore(ctx); err != nil {
			return err
		}

		path := gesture.DefaultFileName(time.Now())
		if len(args) == 1 {
			path = args[0]
		}
		if err := sess.SaveFile(ctx, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d gestures to %s\n", sess.Library().Len(), path)
		return nil
	},
}

// storeSession opens the store and a session backed by it.
func storeSession(cfg *config.Config) (*app.Session, *store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil, errors.New("store is disabled")
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	sess, err := newSession(cfg, app.WithStore(st))
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return sess, st, nil
}
