package ipset

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Runner executes name with argv, feeding stdin when non-nil.
type Runner func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. No shell is involved.
func ExecRunner(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// CLI implements SetAPI with the ipset binary.
type CLI struct {
	Binary  string
	Timeout time.Duration
	Run     Runner
}

// NewCLI returns a CLI for binary. An empty binary means "ipset".
func NewCLI(binary string, timeout time.Duration) *CLI {
	if binary == "" {
		binary = "ipset"
	}
	return &CLI{Binary: binary, Timeout: timeout, Run: ExecRunner}
}

func (c *CLI) exec(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return c.Run(ctx, stdin, c.Binary, args...)
}

// ListNames implements SetAPI.
func (c *CLI) ListNames(ctx context.Context) ([]string, error) {
	out, err := c.exec(ctx, nil, "list", "-n")
	if err != nil {
		return nil, err
	}
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	return names, scanner.Err()
}

// Create implements SetAPI. Creating an existing set with the same
// parameters is a no-op.
func (c *CLI) Create(ctx context.Context, name string, p Params) error {
	_, err := c.exec(ctx, nil, "create", name, SetType,
		"family", Family,
		"hashsize", fmt.Sprint(p.HashSize),
		"maxelem", fmt.Sprint(p.MaxElem),
		"-exist")
	return err
}

// Restore implements SetAPI by piping script to `ipset restore`.
func (c *CLI) Restore(ctx context.Context, script string) error {
	_, err := c.exec(ctx, strings.NewReader(script), "restore")
	return err
}
