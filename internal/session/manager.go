// Package session implements the broker core: the registry of live
// sessions and the manager that drives container lifecycle, code execution,
// artifact scanning, and the error-mapping policy.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpsandbox/mcpsandbox/internal/config"
	"github.com/mcpsandbox/mcpsandbox/internal/docker"
	"github.com/mcpsandbox/mcpsandbox/internal/metrics"
	"github.com/mcpsandbox/mcpsandbox/internal/tarball"
	"github.com/mcpsandbox/mcpsandbox/internal/validate"
	"github.com/mcpsandbox/mcpsandbox/pkg/log"
	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

const (
	// DataDir is the writable directory inside every sandbox container.
	// Uploaded files and generated artifacts live only here.
	DataDir = "/mnt/data"

	// AppLabel marks every container this broker owns; the orphan sweep
	// reconciles against it.
	AppLabel = "app=mcp-code-sandbox"

	labelApp       = "app"
	appName        = "mcp-code-sandbox"
	labelSessionID = "session_id"

	containerPrefix = "sandbox-"
)

// Manager composes the container driver, tar codec, artifact scanner, and
// registry into the five public session operations.
type Manager struct {
	cfg         *config.Config
	engine      Engine
	reg         *Registry
	log         zerolog.Logger
	httpEnabled atomic.Bool
}

// NewManager creates a session manager on top of a container engine.
func NewManager(cfg *config.Config, engine Engine) *Manager {
	return &Manager{
		cfg:    cfg,
		engine: engine,
		reg:    NewRegistry(cfg.MaxSessions),
		log:    log.WithComponent("session"),
	}
}

// EnableHTTP signals that the artifact HTTP server is running, which turns
// on download URLs in artifact listings.
func (m *Manager) EnableHTTP() {
	m.httpEnabled.Store(true)
}

// ContainerName returns the container name for a session id.
func (m *Manager) ContainerName(sessionID string) string {
	return containerPrefix + sessionID
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	return m.reg.Len()
}

// Sessions returns all live session ids.
func (m *Manager) Sessions() []string {
	return m.reg.Sessions()
}

// IdleLongerThan returns sessions idle beyond ttl; used by the reaper.
func (m *Manager) IdleLongerThan(ttl time.Duration) []string {
	return m.reg.IdleLongerThan(ttl)
}

func (m *Manager) downloadURL(sessionID, filename string) string {
	if !m.httpEnabled.Load() {
		return ""
	}
	host := m.cfg.HTTPHost
	if host == "0.0.0.0" || host == "127.0.0.1" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d/files/%s/%s", host, m.cfg.HTTPPort, sessionID, filename)
}

// getOrCreate resolves a session id to its container, creating a fresh
// container for unknown ids. An empty id means auto-generate.
func (m *Manager) getOrCreate(ctx context.Context, sessionID string) (string, string, *types.Error) {
	sid := sessionID
	if sid == "" {
		sid = NewSessionID()
	}

	if container, ok := m.reg.Lookup(sid); ok {
		m.reg.Touch(sid)
		m.log.Debug().Str("session_id", sid).Msg("session reused")
		return sid, container, nil
	}

	if m.reg.AtCapacity() {
		m.log.Warn().Int("current", m.reg.Len()).Int("limit", m.cfg.MaxSessions).
			Msg("max sessions reached")
		return "", "", types.NewError(types.ErrMaxSessions, fmt.Sprintf(
			"Maximum %d concurrent sessions reached. Close an existing session first.",
			m.cfg.MaxSessions))
	}

	name := m.ContainerName(sid)
	m.log.Info().Str("session_id", sid).Str("image", m.cfg.Image).Msg("session creating")
	start := time.Now()

	cfg := docker.HardenedConfig(name, m.cfg.Image)
	cfg.Labels[labelApp] = appName
	cfg.Labels[labelSessionID] = sid
	cfg.Memory = m.cfg.MemoryLimit
	cfg.CPUs = m.cfg.CPULimit

	if _, err := m.engine.CreateContainer(ctx, cfg); err != nil {
		return "", "", m.mapDockerError(err, sid)
	}
	if err := m.engine.StartContainer(ctx, name); err != nil {
		_ = m.engine.RemoveContainer(ctx, name, true, true)
		return "", "", m.mapDockerError(err, sid)
	}

	if !m.reg.Add(sid, name) {
		// Lost a create race against the capacity limit.
		_ = m.engine.RemoveContainer(ctx, name, true, true)
		return "", "", types.NewError(types.ErrMaxSessions, fmt.Sprintf(
			"Maximum %d concurrent sessions reached. Close an existing session first.",
			m.cfg.MaxSessions))
	}

	metrics.SessionCreateDuration.Observe(time.Since(start).Seconds())
	metrics.SessionsActive.Set(float64(m.reg.Len()))
	m.log.Info().Str("session_id", sid).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("session created")
	return sid, name, nil
}

// Upload places a file at /mnt/data/<filename> inside the session
// container, creating the session when needed.
func (m *Manager) Upload(ctx context.Context, sessionID, filename, contentBase64 string, overwrite bool) (*types.UploadResult, *types.Error) {
	if err := validate.Filename(filename); err != nil {
		return nil, err
	}

	sid, container, serr := m.getOrCreate(ctx, sessionID)
	if serr != nil {
		return nil, serr
	}

	if !overwrite {
		result, err := m.engine.ExecInContainer(ctx, docker.ExecConfig{
			Container: container,
			Command:   []string{"test", "-f", DataDir + "/" + filename},
		})
		if err != nil {
			return nil, m.mapDockerError(err, sid)
		}
		if result.ExitCode == 0 {
			return nil, types.NewError(types.ErrFileExists, fmt.Sprintf(
				"%s already exists. Set overwrite=true to replace.", filename))
		}
	}

	data, err := base64.StdEncoding.DecodeString(contentBase64)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidContent, "content_base64 is not valid base64")
	}

	tarBytes, err := tarball.Build(filename, data)
	if err != nil {
		return nil, types.NewError(types.ErrExecutionFailed, err.Error())
	}
	if err := m.engine.PutArchive(ctx, container, DataDir, tarBytes); err != nil {
		return nil, m.mapDockerError(err, sid)
	}

	m.log.Info().Str("session_id", sid).Str("filename", filename).
		Int("size_bytes", len(data)).Msg("file uploaded")
	return &types.UploadResult{SessionID: sid, Path: DataDir + "/" + filename}, nil
}

// Execute runs code in the session's container. Within a session executions
// are strictly serialized; a concurrent execute is rejected with
// session_busy rather than queued.
func (m *Manager) Execute(ctx context.Context, sessionID, code string) (*types.RunResult, *types.Error) {
	sid, container, serr := m.getOrCreate(ctx, sessionID)
	if serr != nil {
		return nil, serr
	}

	mu, ok := m.reg.LockFor(sid)
	if !ok {
		// Lost a race against close or the reaper.
		return nil, types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("No active session with id %s", sid))
	}
	if !mu.TryLock() {
		return nil, types.NewError(types.ErrSessionBusy, fmt.Sprintf(
			"Session %s is already executing code. Wait or use a different session.", sid))
	}
	defer mu.Unlock()

	return m.executeLocked(ctx, sid, container, code)
}

func (m *Manager) executeLocked(ctx context.Context, sid, container, code string) (*types.RunResult, *types.Error) {
	runID := NewRunID()
	m.log.Info().Str("session_id", sid).Str("run_id", runID).
		Int("code_bytes", len(code)).Msg("container exec start")

	before := m.snapshotFiles(ctx, container)

	start := time.Now()
	result, err := m.engine.ExecInContainer(ctx, docker.ExecConfig{
		Container: container,
		Command: []string{
			"timeout", fmt.Sprintf("%d", m.cfg.ExecTimeoutS),
			"python", "-c", code,
		},
		WorkDir: DataDir,
	})
	if err != nil {
		return nil, m.mapDockerError(err, sid)
	}
	durationMS := time.Since(start).Milliseconds()
	metrics.ExecDuration.Observe(time.Since(start).Seconds())

	// timeout(1) exits 124 when it kills the child.
	exitCode := result.ExitCode
	timedOut := exitCode == 124
	if timedOut {
		exitCode = -1
	}

	stdoutBytes := result.Stdout
	stderrBytes := result.Stderr

	maxOut := m.cfg.MaxOutputBytes
	stdoutTruncated := int64(len(stdoutBytes)) > maxOut
	stderrTruncated := int64(len(stderrBytes)) > maxOut
	if stdoutTruncated {
		m.log.Warn().Str("session_id", sid).Int("original_bytes", len(stdoutBytes)).
			Int64("limit_bytes", maxOut).Msg("stdout truncated")
		stdoutBytes = stdoutBytes[:maxOut]
	}
	if stderrTruncated {
		m.log.Warn().Str("session_id", sid).Int("original_bytes", len(stderrBytes)).
			Int64("limit_bytes", maxOut).Msg("stderr truncated")
		stderrBytes = stderrBytes[:maxOut]
	}

	stdout := strings.ToValidUTF8(string(stdoutBytes), "�")
	stderr := strings.ToValidUTF8(string(stderrBytes), "�")
	if timedOut {
		stderr += fmt.Sprintf("\nExecution timed out after %ds", m.cfg.ExecTimeoutS)
	}

	// Failed runs surface no artifacts; partial state from a crashed script
	// is not trustworthy.
	artifacts := make([]types.Artifact, 0)
	if exitCode == 0 {
		after := m.snapshotFiles(ctx, container)
		artifacts = m.diffSnapshots(before, after, sid)
		m.log.Debug().Str("session_id", sid).Int("before_count", len(before)).
			Int("after_count", len(after)).Int("new_artifacts", len(artifacts)).
			Msg("artifact scan")
	}

	m.reg.Touch(sid)
	m.log.Info().Str("session_id", sid).Str("run_id", runID).Int("exit_code", exitCode).
		Int("stdout_bytes", len(stdoutBytes)).Int("stderr_bytes", len(stderrBytes)).
		Int64("duration_ms", durationMS).Msg("container exec done")

	return &types.RunResult{
		SessionID:       sid,
		RunID:           runID,
		ExitCode:        exitCode,
		Stdout:          stdout,
		Stderr:          stderr,
		StdoutTruncated: stdoutTruncated,
		StderrTruncated: stderrTruncated,
		Artifacts:       artifacts,
		DurationMS:      durationMS,
	}, nil
}

// List returns every file in the session's data directory. The session must
// already exist.
func (m *Manager) List(ctx context.Context, sessionID string) (*types.ListResult, *types.Error) {
	container, ok := m.reg.Lookup(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("No active session with id %s", sessionID))
	}
	m.reg.Touch(sessionID)

	snapshot := m.snapshotFiles(ctx, container)
	artifacts := make([]types.Artifact, 0, len(snapshot))
	for _, info := range snapshot {
		artifacts = append(artifacts, m.artifactFor(sessionID, info))
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Filename < artifacts[j].Filename })
	return &types.ListResult{Artifacts: artifacts}, nil
}

// Read returns one artifact's bytes, base64-encoded, enforcing the read
// size limit from the tar header so over-limit files are never buffered.
func (m *Manager) Read(ctx context.Context, sessionID, artifactPath string) (*types.ReadResult, *types.Error) {
	container, ok := m.reg.Lookup(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("No active session with id %s", sessionID))
	}

	resolved, perr := resolveDataPath(artifactPath)
	if perr != nil {
		return nil, perr
	}
	m.reg.Touch(sessionID)
	filename := path.Base(resolved)

	stream, err := m.engine.GetArchive(ctx, container, resolved)
	if err != nil {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("No artifact at %s", artifactPath))
	}
	data, size, terr := tarball.ExtractFirst(stream, m.cfg.MaxArtifactReadBytes)
	_ = stream.Close()

	if errors.Is(terr, tarball.ErrTooLarge) {
		return nil, &types.Error{
			Kind: types.ErrArtifactTooLarge,
			Message: fmt.Sprintf("%s is %dMB, exceeds %dMB limit.",
				filename, size/(1024*1024), m.cfg.MaxArtifactReadBytes/(1024*1024)),
			SizeBytes: size,
		}
	}
	if terr != nil {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("No artifact at %s", artifactPath))
	}

	return &types.ReadResult{
		Path:          artifactPath,
		Filename:      filename,
		MimeType:      mediaType(filename),
		SizeBytes:     size,
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// resolveDataPath reduces a client-supplied path to its basename within the
// data directory and rejects anything that escapes it.
func resolveDataPath(p string) (string, *types.Error) {
	resolved := path.Join(DataDir, path.Base(p))
	if !strings.HasPrefix(resolved, DataDir+"/") {
		return "", types.NewError(types.ErrInvalidPath, "Path outside /mnt/data/")
	}
	return resolved, nil
}

// Close destroys a session's container and forgets the session. The session
// is gone from the registry even when container removal fails. Removal
// happens under the session mutex so a concurrent create with the same id
// cannot collide with the dying container's name.
func (m *Manager) Close(ctx context.Context, sessionID string) (*types.CloseResult, *types.Error) {
	mu, ok := m.reg.LockFor(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("No active session with id %s", sessionID))
	}
	if !mu.TryLock() {
		return nil, types.NewError(types.ErrSessionBusy, fmt.Sprintf(
			"Session %s is already executing code. Wait or use a different session.", sessionID))
	}

	container, ok := m.reg.Lookup(sessionID)
	if !ok {
		// Lost a close race; the winner already removed the container.
		mu.Unlock()
		return nil, types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("No active session with id %s", sessionID))
	}

	m.log.Info().Str("session_id", sessionID).Msg("session destroying")
	err := m.engine.RemoveContainer(ctx, container, true, true)
	m.reg.Remove(sessionID)
	mu.Unlock()
	metrics.SessionsActive.Set(float64(m.reg.Len()))

	if err != nil {
		m.log.Error().Str("session_id", sessionID).Err(err).Msg("session destroy failed")
		return nil, m.mapDockerError(err, sessionID)
	}

	m.log.Info().Str("session_id", sessionID).Msg("session destroyed")
	return &types.CloseResult{Status: "closed"}, nil
}

// CloseAll closes every live session; used on broker shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, sid := range m.reg.Sessions() {
		if _, err := m.Close(ctx, sid); err != nil {
			m.log.Error().Str("session_id", sid).Str("error", err.Kind).
				Msg("shutdown close failed")
		}
	}
}

// mapDockerError maps engine errors into the closed taxonomy.
func (m *Manager) mapDockerError(err error, sessionID string) *types.Error {
	m.log.Error().Str("session_id", sessionID).Err(err).Msg("docker error")

	var nf *docker.NotFoundError
	var api *docker.APIError
	var unavail *docker.UnavailableError
	switch {
	case errors.As(err, &nf):
		return types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("Container for session %s not found", sessionID))
	case errors.As(err, &api):
		return types.NewError(types.ErrDockerError, "Docker API error: "+api.Msg)
	case errors.As(err, &unavail):
		return types.NewError(types.ErrDockerUnavailable, "Docker unavailable: "+unavail.Msg)
	default:
		return types.NewError(types.ErrExecutionFailed, err.Error())
	}
}
