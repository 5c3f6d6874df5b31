package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/gesture"
)

const testConfig = `
recognizer:
  dimension: 2
  threshold: 0.5
  window: 0.5
  max_slope: 2
  endpoint_threshold: 0
  min_frames: 3
  workers: 1
  frame_budget: 0s
buffer:
  max_size: 8
  decimation: 1
  countdown: 1s
store:
  enabled: true
  path: %DIR%/mudra.db
plugins:
  dir: %DIR%/plugins
  timeout: 1s
  announce: ""
log:
  level: error
`

// writeConfig writes a two-dimensional config rooted in a temp dir.
func writeConfig(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "mudra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "%DIR%", dir)), 0644))
	return dir, path
}

func writeGestures(t *testing.T, path string, entries ...gesture.Entry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, gesture.WriteText(f, entries))
}

func ramp(n int, offset float64) gesture.Sequence {
	seq := make(gesture.Sequence, n)
	for i := range seq {
		v := offset + float64(i)
		seq[i] = gesture.Frame{v, v}
	}
	return seq
}

// run executes the root command with fresh flag state.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	configPath, logLevel = "", ""
	recognizeLibrary, recognizeVerbose = "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd_Definition(t *testing.T) {
	assert.Equal(t, "mudra", rootCmd.Use)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "recognize", "import", "export"} {
		assert.Contains(t, names, want)
	}

	flag := serveCmd.Flags().Lookup("stdin")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestImportExport(t *testing.T) {
	dir, cfg := writeConfig(t)

	src := filepath.Join(dir, "in.txt")
	writeGestures(t, src,
		gesture.Entry{Name: "up", Sequence: ramp(4, 0)},
		gesture.Entry{Name: "good bye", Sequence: ramp(3, 5)},
	)

	out, err := run(t, "", "--config", cfg, "import", src)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 gestures")

	dst := filepath.Join(dir, "out.txt")
	out, err = run(t, "", "--config", cfg, "export", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 gestures")

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()

	entries, err := gesture.ReadText(f, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "up", entries[0].Name)
	assert.True(t, entries[0].Sequence.Equal(ramp(4, 0)))
	assert.Equal(t, "good bye", entries[1].Name)
}

func TestImport_ParseErrorKeepsStore(t *testing.T) {
	dir, cfg := writeConfig(t)

	good := filepath.Join(dir, "good.txt")
	writeGestures(t, good, gesture.Entry{Name: "up", Sequence: ramp(4, 0)})
	_, err := run(t, "", "--config", cfg, "import", good)
	require.NoError(t, err)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("@broken\n1\n~\n"), 0644))
	_, err = run(t, "", "--config", cfg, "import", bad)
	require.ErrorIs(t, err, gesture.ErrParse)

	dst := filepath.Join(dir, "out.txt")
	_, err = run(t, "", "--config", cfg, "export", dst)
	require.NoError(t, err)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	entries, err := gesture.ReadText(f, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "up", entries[0].Name)
}

func TestRecognize(t *testing.T) {
	dir, cfg := writeConfig(t)

	lib := filepath.Join(dir, "gestures.txt")
	writeGestures(t, lib,
		gesture.Entry{Name: "up", Sequence: ramp(4, 0)},
		gesture.Entry{Name: "far", Sequence: ramp(4, 50)},
	)

	t.Run("from stdin", func(t *testing.T) {
		out, err := run(t, "0,0\n1,1\n2,2\n", "--config", cfg, "recognize", "--library", lib)
		require.NoError(t, err)
		assert.Equal(t, "up\t0.2020\n", out)
	})

	t.Run("from file with scores", func(t *testing.T) {
		frames := filepath.Join(dir, "frames.txt")
		require.NoError(t, os.WriteFile(frames, []byte("40 40\n41 41\n"), 0644))

		out, err := run(t, "", "--config", cfg, "recognize", "--library", lib, "--verbose", frames)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "# far\t"), "closest gesture first, got %q", lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "# up\t"))
	})

	t.Run("empty library", func(t *testing.T) {
		_, err := run(t, "", "--config", cfg, "recognize")
		assert.Error(t, err)
	})
}

func TestParseTracker(t *testing.T) {
	name, args, err := parseTracker("  python3 tracker.py --fps 30 ")
	require.NoError(t, err)
	assert.Equal(t, "python3", name)
	assert.Equal(t, []string{"tracker.py", "--fps", "30"}, args)

	name, args, err = parseTracker("tracker")
	require.NoError(t, err)
	assert.Equal(t, "tracker", name)
	assert.Empty(t, args)

	for _, blank := range []string{"", " ", "\t \n"} {
		_, _, err := parseTracker(blank)
		assert.Error(t, err, "tracker %q", blank)
	}
}
