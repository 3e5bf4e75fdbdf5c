// Package execsafe runs external commands from argument vectors, never
// through a shell.
package execsafe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

var (
	ErrEmptyCommand    = errors.New("command must not be empty")
	ErrInvalidArgument = errors.New("command argument contains a NUL byte")
	ErrTimeout         = errors.New("command timed out")
)

// DefaultTimeout bounds commands run without an explicit timeout.
const DefaultTimeout = 30 * time.Second

// ExitError reports a non-zero exit status when Options.Check is set.
type ExitError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Args[0], e.ExitCode)
}

// Options tunes a single run. The zero value applies DefaultTimeout, the
// current directory and the parent environment.
type Options struct {
	Timeout time.Duration
	Dir     string
	// Env replaces the environment when non-nil.
	Env   []string
	Stdin io.Reader
	// Check turns a non-zero exit status into *ExitError.
	Check bool
}

// Result holds captured output of a finished command.
type Result struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes commands and logs each run.
type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewRunner returns a Runner. A nil logger discards output; a non-positive
// timeout means DefaultTimeout.
func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{logger: logger.Named("exec"), timeout: timeout}
}

var defaultRunner = NewRunner(nil, DefaultTimeout)

// Run executes args with the package default runner.
func Run(ctx context.Context, args []string, opts Options) (*Result, error) {
	return defaultRunner.Run(ctx, args, opts)
}

// RunString splits command with shell quoting rules and runs the result
// with the package default runner.
func RunString(ctx context.Context, command string, opts Options) (*Result, error) {
	return defaultRunner.RunString(ctx, command, opts)
}

// Run executes args[0] with args[1:] as literal arguments. Shell
// metacharacters in arguments carry no meaning.
func (r *Runner) Run(ctx context.Context, args []string, opts Options) (*Result, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, ErrEmptyCommand
	}
	for i, a := range args {
		if strings.ContainsRune(a, 0) {
			return nil, fmt.Errorf("%w: argument %d", ErrInvalidArgument, i)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	cmd.Stdin = opts.Stdin
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Args:     append([]string(nil), args...),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("command timed out", zap.String("command", args[0]), zap.Duration("timeout", timeout))
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, args[0])
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		if opts.Check {
			r.logger.Warn("command failed",
				zap.String("command", args[0]),
				zap.Int("exit_code", res.ExitCode),
			)
			return res, &ExitError{Args: res.Args, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
	default:
		r.logger.Error("command could not start", zap.String("command", args[0]), zap.Error(err))
		return nil, err
	}

	r.logger.Debug("command finished",
		zap.String("command", args[0]),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// RunString splits a legacy command string into words and runs them. No
// shell is involved, so quoting groups words but ; | & and $ stay literal.
func (r *Runner) RunString(ctx context.Context, command string, opts Options) (*Result, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("split command: %w", err)
	}
	return r.Run(ctx, args, opts)
}

// ClearTerminal writes the ANSI clear-screen sequence to w. On Windows it
// runs "cmd /c cls" instead.
func ClearTerminal(ctx context.Context, w io.Writer) error {
	if runtime.GOOS == "windows" {
		cmd := exec.CommandContext(ctx, "cmd", "/c", "cls")
		cmd.Stdout = w
		return cmd.Run()
	}
	_, err := io.WriteString(w, "\x1b[H\x1b[2J")
	return err
}
