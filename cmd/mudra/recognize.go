package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/notify"
	"github.com/ayusman/mudra/internal/sensor"
)

var (
	recognizeLibrary string
	recognizeVerbose bool
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize [frames-file]",
	Short: "Recognize gestures in a recorded frame stream",
	Long: `Read feature frames from a file, or standard input when no file is
given, and print every recognized gesture. With --verbose the distance of the
whole stream to every gesture is printed at the end.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecognize,
}

func init() {
	recognizeCmd.Flags().StringVarP(&recognizeLibrary, "library", "l", "", "gesture file (defaults to library.file, then the store)")
	recognizeCmd.Flags().BoolVarP(&recognizeVerbose, "verbose", "v", false, "print per-gesture distances for the whole stream")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx, cfg, logger, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer logger.Sync()

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out := cmd.OutOrStdout()
	printer := notify.NotifierFunc(func(_ context.Context, ev notify.Event) error {
		if ev.Kind != notify.KindMatch {
			return nil
		}
		_, err := fmt.Fprintf(out, "%s\t%.4f\n", ev.Gesture, ev.Distance)
		return err
	})

	opts := []app.Option{app.WithNotifier(printer)}

	file := cfg.Library.File
	if recognizeLibrary != "" {
		file = recognizeLibrary
	} else {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
			opts = append(opts, app.WithStore(st))
		}
	}

	sess, err := newSession(cfg, opts...)
	if err != nil {
		return err
	}
	if err := loadLibrary(ctx, sess, file); err != nil {
		return err
	}
	if sess.Library().Len() == 0 {
		return fmt.Errorf("no gestures to recognize")
	}

	src := &recordingSource{src: sensor.NewLineSource(in), dimension: cfg.Recognizer.Dimension}
	if err := sess.Run(ctx, src); err != nil {
		return err
	}

	if recognizeVerbose {
		for _, s := range sess.Recognizer().Scores(src.Frames()) {
			if s.Skipped {
				fmt.Fprintf(out, "# %s\tskipped\n", s.Name)
				continue
			}
			fmt.Fprintf(out, "# %s\t%.4f\n", s.Name, s.Distance)
		}
	}
	return nil
}

// recordingSource keeps every valid frame it passes on.
type recordingSource struct {
	src       sensor.Source
	dimension int

	mu     sync.Mutex
	frames gesture.Sequence
}

func (r *recordingSource) Next(ctx context.Context) (gesture.Frame, error) {
	frame, err := r.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	if len(frame) == r.dimension && frame.Finite() {
		r.mu.Lock()
		r.frames = append(r.frames, frame.Clone())
		r.mu.Unlock()
	}
	return frame, nil
}

// Frames returns the frames read so far.
func (r *recordingSource) Frames() gesture.Sequence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}
