package session

import (
	"context"
	"mime"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/mcpsandbox/mcpsandbox/internal/docker"
	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

func init() {
	// The built-in extension table lacks several types common in sandbox
	// output, and the system table is not guaranteed to exist.
	for ext, typ := range map[string]string{
		".txt": "text/plain",
		".log": "text/plain",
		".csv": "text/csv",
		".md":  "text/markdown",
	} {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// fileInfo is one entry in a data-directory snapshot. The mtime is kept as
// the raw string find prints so equality is exact.
type fileInfo struct {
	name  string
	size  int64
	mtime string
}

// snapshotFiles lists top-level regular files under /mnt/data with one exec.
// Failures yield an empty snapshot; the diff is advisory and list remains
// authoritative.
func (m *Manager) snapshotFiles(ctx context.Context, container string) map[string]fileInfo {
	result, err := m.engine.ExecInContainer(ctx, docker.ExecConfig{
		Container: container,
		Command: []string{
			"find", DataDir,
			"-maxdepth", "1",
			"-type", "f",
			"-printf", "%f\\t%s\\t%T@\\n",
		},
	})
	if err != nil || result.ExitCode != 0 {
		return map[string]fileInfo{}
	}
	return parseSnapshot(string(result.Stdout))
}

func parseSnapshot(stdout string) map[string]fileInfo {
	files := make(map[string]fileInfo)
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		files[parts[0]] = fileInfo{name: parts[0], size: size, mtime: parts[2]}
	}
	return files
}

// diffSnapshots returns the files that are new or whose mtime changed
// between two snapshots. Deletions are not reported.
func (m *Manager) diffSnapshots(before, after map[string]fileInfo, sessionID string) []types.Artifact {
	artifacts := make([]types.Artifact, 0)
	for name, info := range after {
		prev, existed := before[name]
		if existed && prev.mtime == info.mtime {
			continue
		}
		artifacts = append(artifacts, m.artifactFor(sessionID, info))
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Filename < artifacts[j].Filename })
	return artifacts
}

func (m *Manager) artifactFor(sessionID string, info fileInfo) types.Artifact {
	return types.Artifact{
		Path:        DataDir + "/" + info.name,
		Filename:    info.name,
		SizeBytes:   info.size,
		MimeType:    mediaType(info.name),
		DownloadURL: m.downloadURL(sessionID, info.name),
	}
}

// mediaType resolves a media type from the filename extension, without
// parameters. Unknown extensions map to application/octet-stream.
func mediaType(name string) string {
	mt := mime.TypeByExtension(path.Ext(name))
	if mt == "" {
		return "application/octet-stream"
	}
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
