// Package main provides the speak plugin. It announces recognized gestures
// through the platform text-to-speech command.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action   string          `json:"action"`
	Gesture  string          `json:"gesture"`
	Distance float64         `json:"distance"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SpeakConfig is the optional per-action configuration.
type SpeakConfig struct {
	// Text replaces the spoken phrase; "{gesture}" expands to the gesture name.
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// dryRunEnv makes the plugin report the command instead of running it.
const dryRunEnv = "MUDRA_SPEAK_DRY_RUN"

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "announce" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	args, err := buildCommand(runtime.GOOS, req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if os.Getenv(dryRunEnv) == "" {
		if err := run(args); err != nil {
			writeErrorResponse(fmt.Sprintf("speak failed: %v", err))
			return
		}
	}

	data, _ := json.Marshal(map[string]any{"command": args})
	writeSuccessResponse(data)
}

// buildCommand returns the text-to-speech command line for the request.
func buildCommand(goos string, req Request) ([]string, error) {
	if req.Gesture == "" {
		return nil, fmt.Errorf("gesture is required")
	}

	var cfg SpeakConfig
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	text := req.Gesture
	if cfg.Text != "" {
		text = strings.ReplaceAll(cfg.Text, "{gesture}", req.Gesture)
	}

	switch goos {
	case "darwin":
		args := []string{"say"}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		return append(args, text), nil
	case "windows":
		script := fmt.Sprintf(
			"Add-Type -AssemblyName System.Speech; (New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak('%s')",
			strings.ReplaceAll(text, "'", "''"),
		)
		return []string{"powershell", "-NoProfile", "-Command", script}, nil
	default:
		args := []string{"espeak"}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		return append(args, text), nil
	}
}

func run(args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
