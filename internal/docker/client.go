package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/mcpsandbox/mcpsandbox/internal/metrics"
)

// Client wraps the docker CLI for container operations.
type Client struct {
	binaryPath string
}

// NewClient creates a new Docker client. It verifies docker is available.
func NewClient() (*Client, error) {
	path, err := exec.LookPath("docker")
	if err != nil {
		return nil, &UnavailableError{Msg: "docker not found in PATH"}
	}
	return &Client{binaryPath: path}, nil
}

// ExecResult holds the output from a docker command.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// run executes a docker command and returns the result. A non-zero exit code
// is not an error at this level; callers classify it against stderr.
func (c *Client) run(ctx context.Context, stdin io.Reader, args ...string) (*ExecResult, error) {
	if len(args) > 0 {
		defer metrics.ObserveDockerOp(args[0], time.Now())
	}

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, &UnavailableError{Msg: fmt.Sprintf("docker exec failed: %v", err)}
	}

	return result, nil
}

// engineRun executes a docker command where any non-zero exit means the
// engine refused the operation.
func (c *Client) engineRun(ctx context.Context, stdin io.Reader, args ...string) (*ExecResult, error) {
	result, err := c.run(ctx, stdin, args...)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, classifyStderr(string(result.Stderr))
	}
	return result, nil
}

// Version returns the docker client version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.engineRun(ctx, nil, "version", "--format", "{{.Client.Version}}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(result.Stdout)), nil
}
