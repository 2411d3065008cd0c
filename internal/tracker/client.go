// Package tracker talks to the fail2ban ban tracker.
package tracker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tracker is the ban tracker surface the sync pipeline needs.
type Tracker interface {
	// Jails lists the jail names the tracker knows about.
	Jails(ctx context.Context) ([]string, error)
	// Banned returns the raw ban list of one jail.
	Banned(ctx context.Context, jail string) ([]string, error)
	// Unban removes one address from one jail.
	Unban(ctx context.Context, jail, addr string) error
}

// Runner executes a binary with argv and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. No shell is involved.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.Bytes(), fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}

// Client drives fail2ban-client.
type Client struct {
	Binary  string
	Timeout time.Duration
	Run     Runner
}

// NewClient returns a Client for binary. An empty binary means "fail2ban-client".
func NewClient(binary string, timeout time.Duration) *Client {
	if binary == "" {
		binary = "fail2ban-client"
	}
	return &Client{Binary: binary, Timeout: timeout, Run: ExecRunner}
}

func (c *Client) exec(ctx context.Context, args ...string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	out, err := c.Run(ctx, c.Binary, args...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Jails implements Tracker.
func (c *Client) Jails(ctx context.Context) ([]string, error) {
	out, err := c.exec(ctx, "status")
	if err != nil {
		return nil, fmt.Errorf("tracker: list jails: %w", err)
	}
	return ParseJailList(out)
}

// Banned implements Tracker.
func (c *Client) Banned(ctx context.Context, jail string) ([]string, error) {
	out, err := c.exec(ctx, "status", jail)
	if err != nil {
		return nil, fmt.Errorf("tracker: status %s: %w", jail, err)
	}
	return ParseBannedList(out)
}

// Unban implements Tracker.
func (c *Client) Unban(ctx context.Context, jail, addr string) error {
	if _, err := c.exec(ctx, "set", jail, "unbanip", addr); err != nil {
		return fmt.Errorf("tracker: unban %s from %s: %w", addr, jail, err)
	}
	return nil
}
