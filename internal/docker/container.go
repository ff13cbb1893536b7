package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ContainerConfig defines how to create a container.
type ContainerConfig struct {
	Name         string
	Image        string
	Labels       map[string]string
	Memory       string // e.g. "512m"
	CPUs         float64
	NetworkMode  string // "none", "bridge"
	ReadOnly     bool
	TmpFS        map[string]string // mount -> options
	Volumes      []string          // anonymous volumes, e.g. "/mnt/data"
	CapDrop      []string
	SecurityOpts []string
	Command      []string
}

// HardenedConfig returns the locked-down sandbox container config: no
// network, all capabilities dropped, read-only rootfs, a long-lived sleeper
// as the container command.
func HardenedConfig(name, image string) ContainerConfig {
	return ContainerConfig{
		Name:         name,
		Image:        image,
		Labels:       make(map[string]string),
		NetworkMode:  "none",
		ReadOnly:     true,
		TmpFS:        map[string]string{"/tmp": "size=64m,uid=1000,gid=1000"},
		Volumes:      []string{"/mnt/data"},
		CapDrop:      []string{"ALL"},
		SecurityOpts: []string{"no-new-privileges"},
		Command:      []string{"sleep", "infinity"},
	}
}

// CreateContainer creates a container with the given config. Returns the container ID.
func (c *Client) CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	args := []string{"create", "--name", cfg.Name}

	for k, v := range cfg.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}

	if cfg.Memory != "" {
		args = append(args, "--memory", cfg.Memory)
	}
	if cfg.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(cfg.CPUs, 'f', -1, 64))
	}
	if cfg.NetworkMode != "" {
		args = append(args, "--network", cfg.NetworkMode)
	}
	if cfg.ReadOnly {
		args = append(args, "--read-only")
	}
	for mount, opts := range cfg.TmpFS {
		args = append(args, "--tmpfs", fmt.Sprintf("%s:%s", mount, opts))
	}
	for _, vol := range cfg.Volumes {
		args = append(args, "--volume", vol)
	}
	for _, cap := range cfg.CapDrop {
		args = append(args, "--cap-drop", cap)
	}
	for _, opt := range cfg.SecurityOpts {
		args = append(args, "--security-opt", opt)
	}

	args = append(args, cfg.Image)
	args = append(args, cfg.Command...)

	result, err := c.engineRun(ctx, nil, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(result.Stdout)), nil
}

// StartContainer starts a container by name or ID.
func (c *Client) StartContainer(ctx context.Context, nameOrID string) error {
	_, err := c.engineRun(ctx, nil, "start", nameOrID)
	return err
}

// RemoveContainer removes a container by name or ID. Force kills running
// containers; removeVolumes deletes anonymous volumes with it.
func (c *Client) RemoveContainer(ctx context.Context, nameOrID string, force, removeVolumes bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "--force")
	}
	if removeVolumes {
		args = append(args, "--volumes")
	}
	args = append(args, nameOrID)

	_, err := c.engineRun(ctx, nil, args...)
	return err
}

// PSEntry represents a container from docker ps.
type PSEntry struct {
	ID     string
	Name   string
	State  string
	Labels map[string]string
}

// psLine matches docker ps --format '{{json .}}' output, where Names and
// Labels are flat strings.
type psLine struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	State  string `json:"State"`
	Labels string `json:"Labels"`
}

// ListContainers lists all containers (running or not) matching the given
// label filter ("key=value").
func (c *Client) ListContainers(ctx context.Context, labelFilter string) ([]PSEntry, error) {
	args := []string{"ps", "-a", "--no-trunc", "--format", "{{json .}}"}
	if labelFilter != "" {
		args = append(args, "--filter", "label="+labelFilter)
	}

	result, err := c.engineRun(ctx, nil, args...)
	if err != nil {
		return nil, err
	}

	var entries []PSEntry
	for _, line := range strings.Split(strings.TrimSpace(string(result.Stdout)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var pl psLine
		if err := json.Unmarshal([]byte(line), &pl); err != nil {
			return nil, &APIError{Msg: fmt.Sprintf("failed to parse docker ps output: %v", err)}
		}
		entries = append(entries, PSEntry{
			ID:     pl.ID,
			Name:   pl.Names,
			State:  pl.State,
			Labels: parseLabels(pl.Labels),
		})
	}
	return entries, nil
}

// parseLabels splits docker's "k1=v1,k2=v2" label string into a map.
func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if ok {
			labels[k] = v
		}
	}
	return labels
}
