package docker

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
)

// PutArchive streams a tar archive into destDir inside the container.
func (c *Client) PutArchive(ctx context.Context, container, destDir string, tarBytes []byte) error {
	_, err := c.engineRun(ctx, bytes.NewReader(tarBytes), "cp", "-", container+":"+destDir)
	return err
}

// GetArchive returns a tar stream of srcPath inside the container. The
// caller must Close the stream; Close reports the engine error, if any, for
// streams that produced no readable archive.
func (c *Client) GetArchive(ctx context.Context, container, srcPath string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.binaryPath, "cp", container+":"+srcPath, "-")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &UnavailableError{Msg: err.Error()}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &UnavailableError{Msg: err.Error()}
	}

	return &tarStream{cmd: cmd, out: stdout, stderr: &stderr, cancel: cancel}, nil
}

// tarStream wraps the stdout of a running `docker cp` process.
type tarStream struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr *bytes.Buffer
	cancel context.CancelFunc

	once     sync.Once
	closeErr error
}

func (s *tarStream) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

// Close terminates the copy if still running and reaps the process. If the
// copy failed (for example the path does not exist), the classified engine
// error is returned.
func (s *tarStream) Close() error {
	s.once.Do(func() {
		s.out.Close()
		s.cancel()
		err := s.cmd.Wait()
		if err == nil {
			return
		}
		if s.stderr.Len() > 0 {
			s.closeErr = classifyStderr(s.stderr.String())
			return
		}
		// Killed by our own cancel after an early stop; not an engine error.
		if s.cmd.ProcessState != nil && !s.cmd.ProcessState.Exited() {
			return
		}
		s.closeErr = &APIError{Msg: err.Error()}
	})
	return s.closeErr
}
