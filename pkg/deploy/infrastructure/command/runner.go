package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
)

type Command struct {
	WorkDir    string
	Executable string
	Args       []string
}

// Result carries the captured output of a finished process. ExitCode is -1
// when the process did not run or was killed before exiting.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type Runner interface {
	Execute(ctx context.Context, command Command) (Result, error)
}

func NewCommandRunner(logger applogger.Logger, silentMode bool) Runner {
	return &runner{
		logger:     logger,
		silentMode: silentMode,
	}
}

type runner struct {
	logger     applogger.Logger
	silentMode bool
}

func (r runner) Execute(ctx context.Context, command Command) (Result, error) {
	if command.Executable == "" {
		return Result{ExitCode: -1}, errors.New("command executable can not be empty")
	}
	// nolint:gosec
	cmd := exec.CommandContext(ctx, command.Executable, command.Args...)
	cmd.Dir = command.WorkDir
	if !r.silentMode {
		r.logger.Debug(cmd.String())
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(err),
	}
	if err != nil && ctx.Err() != nil {
		// cancellation wins over whatever the killed process reported
		return result, ctx.Err()
	}
	return result, err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
