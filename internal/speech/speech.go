// Package speech speaks assistant replies through an external text-to-speech program.
package speech

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"pkt.systems/pslog"
)

// Candidates lists the programs looked up on PATH, in order, when no command is configured.
var Candidates = []string{"espeak-ng", "espeak", "spd-say", "say"}

// Speaker speaks text without blocking the caller.
type Speaker interface {
	Speak(text string)
	Stop()
	Close() error
}

// Noop discards everything.
type Noop struct{}

func (Noop) Speak(string) {}
func (Noop) Stop()        {}
func (Noop) Close() error { return nil }

// Config selects the speech backend.
type Config struct {
	Enabled bool
	Command string
	Args    []string
}

// Detect returns a Command speaker for the configured or first available program,
// or Noop when speech is disabled or no program is found.
func Detect(cfg Config, logger pslog.Logger) Speaker {
	if !cfg.Enabled {
		return Noop{}
	}
	candidates := Candidates
	if name := strings.TrimSpace(cfg.Command); name != "" {
		candidates = []string{name}
	}
	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		if logger != nil {
			logger.Debug("speech program found", "path", path)
		}
		return NewCommand(path, cfg.Args, logger)
	}
	if logger != nil {
		logger.Warn("speech disabled: no text-to-speech program found", "candidates", strings.Join(candidates, ","))
	}
	return Noop{}
}

type runFunc func(ctx context.Context, text string) error

// Command runs one external process per utterance. Starting a new utterance
// cancels the running one, and a new process starts only after the previous exited.
type Command struct {
	run runFunc
	log pslog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewCommand returns a speaker invoking path with args followed by the text.
func NewCommand(path string, args []string, logger pslog.Logger) *Command {
	fixed := append([]string(nil), args...)
	return newCommand(func(ctx context.Context, text string) error {
		argv := append(append([]string(nil), fixed...), text)
		return exec.CommandContext(ctx, path, argv...).Run()
	}, logger)
}

func newCommand(run runFunc, logger pslog.Logger) *Command {
	return &Command{run: run, log: logger}
}

// Speak cancels any running utterance and speaks text in the background.
func (c *Command) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	prev := c.done
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}
		if err := c.run(ctx, text); err != nil && ctx.Err() == nil && c.log != nil {
			c.log.Warn("speech failed", "err", err)
		}
	}()
}

// Stop cancels the current utterance, if any.
func (c *Command) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Close stops speaking and waits for the running process to exit.
func (c *Command) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}
