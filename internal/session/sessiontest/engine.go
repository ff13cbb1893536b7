// Package sessiontest provides an in-memory container engine for tests.
package sessiontest

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/mcpsandbox/mcpsandbox/internal/docker"
)

// File is one entry in a fake container's data directory.
type File struct {
	Data  []byte
	Mtime string
}

// Container records one created container and its files under /mnt/data.
type Container struct {
	Config  docker.ContainerConfig
	Running bool
	Files   map[string]*File
}

// Engine is an in-memory stand-in for the docker driver. Its exec handler
// understands the exact commands the session manager issues: the upload
// probe (test -f), the snapshot listing (find), and the timeout-wrapped
// interpreter run.
type Engine struct {
	mu         sync.Mutex
	containers map[string]*Container
	mtimeSeq   int64

	CreateErr error
	StartErr  error
	RemoveErr error
	ListErr   error
	ExecErr   error
	PutErr    error
	GetErr    error

	// RunScript handles interpreter execs. It may mutate the container's
	// files through the engine. Nil means exit 0 with no output.
	RunScript func(c *Container, code string) *docker.ExecResult

	// RemoveHook, when set, runs at the start of RemoveContainer so tests
	// can stall or observe in-flight removals.
	RemoveHook func(nameOrID string)

	// Removed records every RemoveContainer call, in order.
	Removed []string
}

// NewEngine creates an empty fake engine.
func NewEngine() *Engine {
	return &Engine{containers: make(map[string]*Container)}
}

// Get returns the container with the given name, or nil.
func (e *Engine) Get(name string) *Container {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.containers[name]
}

// Len returns the number of containers the engine holds.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.containers)
}

// WriteFile places a file in a container's data directory with a fresh mtime.
func (e *Engine) WriteFile(containerName, filename string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.containers[containerName]
	if c == nil {
		return
	}
	e.mtimeSeq++
	c.Files[filename] = &File{
		Data:  data,
		Mtime: fmt.Sprintf("1700000000.%010d", e.mtimeSeq),
	}
}

func (e *Engine) CreateContainer(ctx context.Context, cfg docker.ContainerConfig) (string, error) {
	if e.CreateErr != nil {
		return "", e.CreateErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.containers[cfg.Name]; ok {
		return "", &docker.APIError{Msg: fmt.Sprintf("Conflict. The container name %q is already in use", cfg.Name)}
	}
	e.containers[cfg.Name] = &Container{Config: cfg, Files: make(map[string]*File)}
	return cfg.Name, nil
}

func (e *Engine) StartContainer(ctx context.Context, nameOrID string) error {
	if e.StartErr != nil {
		return e.StartErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[nameOrID]
	if !ok {
		return &docker.NotFoundError{Msg: "No such container: " + nameOrID}
	}
	c.Running = true
	return nil
}

func (e *Engine) RemoveContainer(ctx context.Context, nameOrID string, force, removeVolumes bool) error {
	if e.RemoveHook != nil {
		e.RemoveHook(nameOrID)
	}
	e.mu.Lock()
	e.Removed = append(e.Removed, nameOrID)
	e.mu.Unlock()
	if e.RemoveErr != nil {
		return e.RemoveErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.containers[nameOrID]; !ok {
		return &docker.NotFoundError{Msg: "No such container: " + nameOrID}
	}
	delete(e.containers, nameOrID)
	return nil
}

func (e *Engine) ListContainers(ctx context.Context, labelFilter string) ([]docker.PSEntry, error) {
	if e.ListErr != nil {
		return nil, e.ListErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var entries []docker.PSEntry
	for name, c := range e.containers {
		if labelFilter != "" && !matchesLabel(c.Config.Labels, labelFilter) {
			continue
		}
		state := "created"
		if c.Running {
			state = "running"
		}
		entries = append(entries, docker.PSEntry{
			ID:     name,
			Name:   name,
			State:  state,
			Labels: c.Config.Labels,
		})
	}
	return entries, nil
}

func matchesLabel(labels map[string]string, filter string) bool {
	k, v, ok := strings.Cut(filter, "=")
	if !ok {
		_, present := labels[filter]
		return present
	}
	return labels[k] == v
}

func (e *Engine) ExecInContainer(ctx context.Context, cfg docker.ExecConfig) (*docker.ExecResult, error) {
	if e.ExecErr != nil {
		return nil, e.ExecErr
	}
	e.mu.Lock()
	c, ok := e.containers[cfg.Container]
	e.mu.Unlock()
	if !ok {
		return nil, &docker.NotFoundError{Msg: "No such container: " + cfg.Container}
	}
	if len(cfg.Command) == 0 {
		return &docker.ExecResult{ExitCode: 0}, nil
	}

	switch cfg.Command[0] {
	case "test":
		// test -f <path>
		name := path.Base(cfg.Command[len(cfg.Command)-1])
		e.mu.Lock()
		_, exists := c.Files[name]
		e.mu.Unlock()
		if exists {
			return &docker.ExecResult{ExitCode: 0}, nil
		}
		return &docker.ExecResult{ExitCode: 1}, nil

	case "find":
		var out bytes.Buffer
		e.mu.Lock()
		for name, f := range c.Files {
			fmt.Fprintf(&out, "%s\t%d\t%s\n", name, len(f.Data), f.Mtime)
		}
		e.mu.Unlock()
		return &docker.ExecResult{Stdout: out.Bytes(), ExitCode: 0}, nil

	case "timeout":
		if e.RunScript == nil {
			return &docker.ExecResult{ExitCode: 0}, nil
		}
		code := cfg.Command[len(cfg.Command)-1]
		return e.RunScript(c, code), nil
	}
	return &docker.ExecResult{Stderr: []byte("unknown command"), ExitCode: 127}, nil
}

func (e *Engine) PutArchive(ctx context.Context, container, destDir string, tarBytes []byte) error {
	if e.PutErr != nil {
		return e.PutErr
	}
	e.mu.Lock()
	_, ok := e.containers[container]
	e.mu.Unlock()
	if !ok {
		return &docker.NotFoundError{Msg: "No such container: " + container}
	}

	tr := tar.NewReader(bytes.NewReader(tarBytes))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &docker.APIError{Msg: "bad tar stream: " + err.Error()}
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return &docker.APIError{Msg: "bad tar member: " + err.Error()}
		}
		e.WriteFile(container, path.Base(hdr.Name), data)
	}
}

func (e *Engine) GetArchive(ctx context.Context, container, srcPath string) (io.ReadCloser, error) {
	if e.GetErr != nil {
		return nil, e.GetErr
	}
	e.mu.Lock()
	c, ok := e.containers[container]
	if !ok {
		e.mu.Unlock()
		return nil, &docker.NotFoundError{Msg: "No such container: " + container}
	}
	name := path.Base(srcPath)
	f, exists := c.Files[name]
	e.mu.Unlock()
	if !exists {
		return nil, &docker.NotFoundError{Msg: "Could not find the file " + srcPath + " in container " + container}
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	_ = tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(f.Data))})
	_, _ = tw.Write(f.Data)
	_ = tw.Close()
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}
