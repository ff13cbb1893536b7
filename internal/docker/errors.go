package docker

import "strings"

// NotFoundError means the engine is reachable but the referenced object
// (container, image, path inside a container) does not exist.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// APIError means the engine is reachable but refused the operation.
type APIError struct {
	Msg string
}

func (e *APIError) Error() string { return e.Msg }

// UnavailableError means the engine itself cannot be reached.
type UnavailableError struct {
	Msg string
}

func (e *UnavailableError) Error() string { return e.Msg }

var unavailablePatterns = []string{
	"Cannot connect to the Docker daemon",
	"Is the docker daemon running",
	"error during connect",
	"docker daemon is not running",
}

var notFoundPatterns = []string{
	"No such container",
	"No such object",
	"No such image",
	"Could not find the file",
	"no such file or directory",
}

// classifyStderr maps docker CLI stderr into the three error buckets.
func classifyStderr(stderr string) error {
	msg := strings.TrimSpace(stderr)
	for _, p := range unavailablePatterns {
		if strings.Contains(msg, p) {
			return &UnavailableError{Msg: msg}
		}
	}
	for _, p := range notFoundPatterns {
		if strings.Contains(msg, p) {
			return &NotFoundError{Msg: msg}
		}
	}
	return &APIError{Msg: msg}
}
