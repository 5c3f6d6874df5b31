package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
)

// ProcessSource reads frames from the standard output of a skeleton tracker
// process, in the LineSource format. The process is started on the first call
// to Next and lives until Close or until the context of that call is done.
type ProcessSource struct {
	name string
	args []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	lines   *LineSource
	started bool
}

// NewProcessSource creates a ProcessSource running name with args.
func NewProcessSource(name string, args ...string) *ProcessSource {
	return &ProcessSource{name: name, args: args}
}

// Next returns the next frame printed by the tracker. It returns io.EOF once
// the tracker closes its output.
func (p *ProcessSource) Next(ctx context.Context) (gesture.Frame, error) {
	p.mu.Lock()
	if err := p.ensureStarted(ctx); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	lines := p.lines
	p.mu.Unlock()

	return lines.Next(ctx)
}

func (p *ProcessSource) ensureStarted(ctx context.Context) error {
	if p.started {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.name, p.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Tracker diagnostics go to our stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tracker %s: %w", p.name, err)
	}
	logging.FromContext(ctx).Infow("tracker started", "command", p.name, "pid", cmd.Process.Pid)

	p.cmd = cmd
	p.lines = NewLineSource(stdout)
	p.started = true
	return nil
}

// Close stops the tracker. A tracker that exits with a non-zero status after
// being stopped is not an error.
func (p *ProcessSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	p.started = false

	_ = p.cmd.Process.Kill()
	err := p.cmd.Wait()
	p.cmd = nil
	p.lines = nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
