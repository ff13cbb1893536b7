package session

import (
	"context"
	"io"

	"github.com/mcpsandbox/mcpsandbox/internal/docker"
)

// Engine is the slice of the container driver the session layer uses.
// *docker.Client satisfies it; tests substitute a fake.
type Engine interface {
	CreateContainer(ctx context.Context, cfg docker.ContainerConfig) (string, error)
	StartContainer(ctx context.Context, nameOrID string) error
	RemoveContainer(ctx context.Context, nameOrID string, force, removeVolumes bool) error
	ListContainers(ctx context.Context, labelFilter string) ([]docker.PSEntry, error)
	ExecInContainer(ctx context.Context, cfg docker.ExecConfig) (*docker.ExecResult, error)
	PutArchive(ctx context.Context, container, destDir string, tarBytes []byte) error
	GetArchive(ctx context.Context, container, srcPath string) (io.ReadCloser, error)
}
