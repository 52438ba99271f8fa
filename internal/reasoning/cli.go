package reasoning

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CLI runs a local command-line model (for example `claude -p`) once per
// prompt. It is safe for concurrent use.
type CLI struct {
	// Path is the binary to execute.
	Path string

	// Args are placed before "-p <prompt>".
	Args []string

	// Timeout bounds each call; expiry kills the process.
	Timeout time.Duration
}

// NewCLI creates a CLI backend.
func NewCLI(path string, args []string, timeout time.Duration) *CLI {
	return &CLI{Path: path, Args: args, Timeout: timeout}
}

// Reason executes the command and returns its trimmed stdout.
func (c *CLI) Reason(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.Args...), "-p", prompt)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Env = cleanEnv()
	// Children that keep stdout open must not hold us past cancellation.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s invocation cancelled: %w", filepath.Base(c.Path), ctx.Err())
		}
		return "", fmt.Errorf("%s invocation failed: %w (stderr: %s)", filepath.Base(c.Path), err, truncate(stderr.String(), 200))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// cleanEnv points TMPDIR at a private directory so CLI tools do not trip
// over editor sockets left in the shared temp dir.
func cleanEnv() []string {
	dir := filepath.Join(os.TempDir(), "nudge-reasoning")
	_ = os.MkdirAll(dir, 0755)

	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "TMPDIR=") {
			env[i] = "TMPDIR=" + dir
			return env
		}
	}
	return append(env, "TMPDIR="+dir)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
