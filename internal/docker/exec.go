package docker

import (
	"context"
	"io"
	"strings"
)

// ExecConfig defines options for executing a command inside a container.
type ExecConfig struct {
	Container string
	Command   []string
	WorkDir   string
	Stdin     io.Reader
}

// ExecInContainer runs a command inside a running container and returns its
// exit code with stdout and stderr demultiplexed. A non-zero exit code from
// the command itself is not an error; engine failures (missing container,
// unreachable daemon) are.
func (c *Client) ExecInContainer(ctx context.Context, cfg ExecConfig) (*ExecResult, error) {
	args := []string{"exec"}
	if cfg.Stdin != nil {
		args = append(args, "-i")
	}
	if cfg.WorkDir != "" {
		args = append(args, "--workdir", cfg.WorkDir)
	}
	args = append(args, cfg.Container)
	args = append(args, cfg.Command...)

	result, err := c.run(ctx, cfg.Stdin, args...)
	if err != nil {
		return nil, err
	}
	if engineErr := execEngineError(result); engineErr != nil {
		return nil, engineErr
	}
	return result, nil
}

// execEngineError distinguishes the docker CLI's own failures from the guest
// command exiting non-zero. docker exec reports daemon errors (missing
// container, unreachable daemon) with exit status 1 and a distinctive stderr
// prefix that guest output never carries, so classification goes by stderr,
// not by exit code.
func execEngineError(result *ExecResult) error {
	if result.ExitCode == 0 {
		return nil
	}
	stderr := string(result.Stderr)
	if strings.Contains(stderr, "Error response from daemon") ||
		strings.Contains(stderr, "Cannot connect to the Docker daemon") ||
		strings.Contains(stderr, "No such container") {
		return classifyStderr(stderr)
	}
	return nil
}
