package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPlugin_Speak_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pluginDir := findPluginDir("speak")
	if pluginDir == "" {
		t.Skip("speak plugin not built")
	}

	// Report the speech command without producing sound.
	t.Setenv("MUDRA_SPEAK_DRY_RUN", "1")

	mgr := NewManager(filepath.Dir(pluginDir))
	if err := mgr.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plug, err := mgr.Get("speak")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	executor := NewExecutor(5 * time.Second)
	resp, err := executor.Execute(context.Background(), plug, &Request{
		Action:  ActionAnnounce,
		Gesture: "hello",
		Config:  json.RawMessage(`{"text":"you said {gesture}"}`),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}

	var data struct {
		Command []string `json:"command"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("failed to parse response data: %v", err)
	}
	if len(data.Command) == 0 || data.Command[len(data.Command)-1] != "you said hello" {
		t.Errorf("unexpected command %v", data.Command)
	}

	// An empty gesture is a plugin failure, not an executor error.
	resp, err = executor.Execute(context.Background(), plug, &Request{Action: ActionAnnounce})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("expected failure for empty gesture")
	}
}

// findPluginDir returns the plugin directory when its executable has been
// built next to the manifest.
func findPluginDir(name string) string {
	candidates := []string{
		filepath.Join("../../plugins", name),
		filepath.Join("../../../plugins", name),
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			continue
		}
		return dir
	}
	return ""
}
