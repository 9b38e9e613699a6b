// Package power keeps the host awake while a display session is running.
package power

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"inkday/internal/config"
	appLog "inkday/internal/log"
)

// Inhibitor prevents host standby between Acquire and Release. Both calls
// are idempotent.
type Inhibitor interface {
	Acquire() error
	Release() error
	Held() bool
}

// New returns a systemd-inhibit backed Inhibitor when cfg.Inhibit is set,
// otherwise a no-op.
func New(cfg config.PowerConfig) Inhibitor {
	if !cfg.Inhibit {
		return &Noop{}
	}
	return NewCommandInhibitor(cfg.Command)
}

// Noop tracks the held flag but touches nothing on the host.
type Noop struct {
	mu   sync.Mutex
	held bool
}

func (n *Noop) Acquire() error { n.set(true); return nil }
func (n *Noop) Release() error { n.set(false); return nil }

func (n *Noop) Held() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.held
}

func (n *Noop) set(v bool) {
	n.mu.Lock()
	n.held = v
	n.mu.Unlock()
}

// CommandInhibitor holds a systemd-inhibit lock by keeping a child process
// alive; the lock is released when the child exits.
type CommandInhibitor struct {
	command string
	args    []string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewCommandInhibitor blocks sleep and idle for as long as the child runs.
func NewCommandInhibitor(command string) *CommandInhibitor {
	if command == "" {
		command = "systemd-inhibit"
	}
	return &CommandInhibitor{
		command: command,
		args: []string{
			"--what=sleep:idle",
			"--who=inkday",
			"--why=display session active",
			"--mode=block",
			"sleep", "infinity",
		},
	}
}

func (c *CommandInhibitor) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return nil
	}

	cmd := exec.Command(c.command, c.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("power: start %s: %w", c.command, err)
	}
	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		close(done)
		c.mu.Lock()
		lost := c.cmd == cmd
		if lost {
			c.cmd = nil
		}
		c.mu.Unlock()
		if lost {
			appLog.Warn("standby inhibitor exited unexpectedly", "err", err)
		}
	}()

	c.cmd, c.done = cmd, done
	appLog.Info("standby inhibited", "pid", cmd.Process.Pid)
	return nil
}

func (c *CommandInhibitor) Release() error {
	c.mu.Lock()
	cmd, done := c.cmd, c.done
	c.cmd = nil
	c.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("power: stop inhibitor: %w", err)
	}
	<-done
	appLog.Info("standby allowed")
	return nil
}

func (c *CommandInhibitor) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil
}
