// Package command runs the shell-like command lines configured for check and reload hooks
// and for the command data source. Command lines are split into words with POSIX shell
// quoting rules and executed directly, never through a shell.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
)

// ErrEmptyCommand is returned when a command line contains no words
var ErrEmptyCommand = errors.New("command is empty")

// Result describes a finished command
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Success reports whether the command started and exited with status zero
func (r Result) Success() bool {
	return r.Err == nil
}

// Runner executes command lines
//
//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks -source=command.go Runner
type Runner interface {
	// Run executes command and waits for it to finish. Cancelling ctx kills the process.
	Run(ctx context.Context, command string) Result

	// Invoke starts command and returns immediately. The result is delivered on
	// the returned channel once the process exits, or at once when it cannot be
	// started. The process is not tied to ctx. An empty command starts nothing
	// and the channel is closed.
	Invoke(ctx context.Context, command string) <-chan Result

	// Output executes command and returns its standard output
	Output(ctx context.Context, command string) ([]byte, error)
}

// Split splits a command line into its words
func Split(command string) ([]string, error) {
	words, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}
	return words, nil
}

type execRunner struct{}

// NewRunner creates a Runner executing commands on the host
func NewRunner() Runner {
	return &execRunner{}
}

func (*execRunner) Run(ctx context.Context, command string) Result {
	result := Result{Command: command, ExitCode: -1}

	words, err := Split(command)
	if err != nil {
		result.Err = err
		return result
	}

	//nolint:gosec // commands come from operator supplied plugin definitions
	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.ExitCode = exitCode(cmd, err)
	if err != nil {
		result.Err = describe(err, result.Stderr)
	}
	return result
}

func (*execRunner) Invoke(_ context.Context, command string) <-chan Result {
	results := make(chan Result, 1)

	if strings.TrimSpace(command) == "" {
		close(results)
		return results
	}

	words, err := Split(command)
	if err != nil {
		results <- Result{Command: command, ExitCode: -1, Err: err}
		close(results)
		return results
	}

	// Not CommandContext: the process outlives the tick and may outlive ctx
	//nolint:gosec // commands come from operator supplied plugin definitions
	cmd := exec.Command(words[0], words[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		results <- Result{Command: command, ExitCode: -1, Err: fmt.Errorf("failed to start: %w", err)}
		close(results)
		return results
	}

	go func() {
		defer close(results)
		err := cmd.Wait()
		result := Result{
			Command:  command,
			ExitCode: exitCode(cmd, err),
			Stderr:   stderr.String(),
			Duration: time.Since(start),
		}
		if err != nil {
			result.Err = describe(err, result.Stderr)
		}
		results <- result
	}()

	return results
}

func (*execRunner) Output(ctx context.Context, command string) ([]byte, error) {
	words, err := Split(command)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // commands come from operator supplied plugin definitions
	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, describe(err, stderr.String())
	}
	return out, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil || cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

func describe(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
