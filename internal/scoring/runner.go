package scoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes the external scoring model once: it is handed the encoded
// feature payload on stdin and returns whatever the model wrote to stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte) ([]byte, error)
}

// ErrStart indicates the scoring process could not be started at all.
var ErrStart = errors.New("scorer failed to start")

// ExitError is returned when the scoring process ran but exited unsuccessfully.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("scorer exited with code %d", e.Code)
	}
	return fmt.Sprintf("scorer exited with code %d: %s", e.Code, e.Stderr)
}

const (
	stderrLimit = 2048
	waitDelay   = 2 * time.Second
)

// ExecRunner runs the scorer as a child process. Arguments are passed as a
// vector and never interpreted by a shell.
type ExecRunner struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// NewExecRunner creates a runner for command with the given argument vector.
func NewExecRunner(command string, args []string, dir string) *ExecRunner {
	return &ExecRunner{Command: command, Args: args, Dir: dir}
}

// Run starts the process, writes stdin, and waits for it to exit. The process
// is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.Stdin = bytes.NewReader(stdin)
	// Bounds the wait for inherited pipes after the process is killed.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStart, err)
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("scorer terminated: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: tail(stderr.String(), stderrLimit)}
		}
		return nil, fmt.Errorf("wait for scorer: %w", err)
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
