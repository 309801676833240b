package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/thv-confd/internal/command"
	"github.com/stacklok/thv-confd/internal/config"
)

// DefaultCommandTimeout bounds a command source when no timeout is configured
const DefaultCommandTimeout = 30 * time.Second

// commandSource runs an external command and decodes the JSON it prints
type commandSource struct {
	runner  command.Runner
	command string
	timeout time.Duration
}

// NewCommandSource creates a command source. A nil runner executes processes directly.
func NewCommandSource(cfg *config.CommandConfig, runner command.Runner) (Source, error) {
	if cfg == nil || cfg.Command == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}
	if _, err := command.Split(cfg.Command); err != nil {
		return nil, err
	}
	timeout := DefaultCommandTimeout
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid command timeout: %w", err)
		}
		timeout = d
	}
	if runner == nil {
		runner = command.NewRunner()
	}
	return &commandSource{runner: runner, command: cfg.Command, timeout: timeout}, nil
}

func (*commandSource) Type() string {
	return config.SourceTypeCommand
}

func (s *commandSource) Fetch(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.runner.Output(ctx, s.command)
	if err != nil {
		return nil, fetchError(config.SourceTypeCommand, err)
	}

	doc, err := Decode(out, config.FormatJSON)
	if err != nil {
		return nil, fetchError(config.SourceTypeCommand, fmt.Errorf("%s: %w", s.command, err))
	}
	return doc, nil
}
