package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner invokes the runtime binary. Injected so tests supply canned
// output instead of a real docker daemon.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// execRunner is the default Runner backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// DockerCLI implements Runtime by shelling out to a docker-compatible
// binary (docker or podman) and parsing its JSON output.
type DockerCLI struct {
	binary string
	runner Runner
	logger *zap.Logger
}

// NewDockerCLI creates a Runtime client for the given binary name. An
// empty binary defaults to "docker"; a nil runner selects os/exec.
func NewDockerCLI(binary string, runner Runner, logger *zap.Logger) *DockerCLI {
	if binary == "" {
		binary = "docker"
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerCLI{binary: binary, runner: runner, logger: logger}
}

// run executes one runtime command, mapping any execution failure to
// ErrUnavailable so callers degrade uniformly.
func (d *DockerCLI) run(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, err := d.runner.Run(ctx, d.binary, args...)
	if err != nil {
		d.logger.Debug("runtime command failed",
			zap.String("binary", d.binary),
			zap.Strings("args", args),
			zap.String("stderr", strings.TrimSpace(stderr)),
			zap.Error(err))
		return "", fmt.Errorf("%w: %s %s: %v", ErrUnavailable, d.binary, strings.Join(args, " "), err)
	}
	return stdout, nil
}

// psLine mirrors one line of `docker ps --format {{json .}}`.
type psLine struct {
	ID        string `json:"ID"`
	Names     string `json:"Names"`
	State     string `json:"State"`
	Labels    string `json:"Labels"`
	CreatedAt string `json:"CreatedAt"`
}

// ListContainers enumerates containers via `ps --format json`.
func (d *DockerCLI) ListContainers(ctx context.Context, all bool) ([]ContainerSnapshot, error) {
	args := []string{"ps", "--no-trunc", "--format", "{{json .}}"}
	if all {
		args = append(args, "--all")
	}
	out, err := d.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var snaps []ContainerSnapshot
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p psLine
		if err := json.Unmarshal(line, &p); err != nil {
			d.logger.Warn("skipping unparseable ps line", zap.Error(err))
			continue
		}
		snaps = append(snaps, ContainerSnapshot{
			ID:        p.ID,
			Name:      firstName(p.Names),
			Status:    strings.ToLower(p.State),
			CreatedAt: parseCreatedAt(p.CreatedAt),
			Labels:    parseLabelList(p.Labels),
		})
	}
	return snaps, nil
}

// inspectDoc mirrors the fields of `docker inspect` we consume.
type inspectDoc struct {
	ID      string `json:"Id"`
	Name    string `json:"Name"`
	Created string `json:"Created"`
	State   struct {
		Status string `json:"Status"`
	} `json:"State"`
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
	HostConfig struct {
		Memory int64 `json:"Memory"`
	} `json:"HostConfig"`
}

// InspectContainer fetches a single container's current state.
func (d *DockerCLI) InspectContainer(ctx context.Context, id string) (*ContainerSnapshot, error) {
	out, err := d.run(ctx, "inspect", id)
	if err != nil {
		return nil, err
	}

	var docs []inspectDoc
	if err := json.Unmarshal([]byte(out), &docs); err != nil {
		return nil, fmt.Errorf("parsing inspect output for %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("container %s not found", id)
	}

	doc := docs[0]
	created, _ := time.Parse(time.RFC3339Nano, doc.Created)
	snap := &ContainerSnapshot{
		ID:        doc.ID,
		Name:      strings.TrimPrefix(doc.Name, "/"),
		Status:    strings.ToLower(doc.State.Status),
		CreatedAt: created,
		Labels:    doc.Config.Labels,
	}
	if doc.HostConfig.Memory > 0 {
		snap.MemoryLimit = uint64(doc.HostConfig.Memory)
	}
	return snap, nil
}

// RemoveContainer removes a container, forcing a stop first when asked.
func (d *DockerCLI) RemoveContainer(ctx context.Context, id string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, id)
	_, err := d.run(ctx, args...)
	return err
}

// statsLine mirrors one line of `docker stats --no-stream --format {{json .}}`.
type statsLine struct {
	ID       string `json:"ID"`
	Name     string `json:"Name"`
	CPUPerc  string `json:"CPUPerc"`
	MemUsage string `json:"MemUsage"`
}

// ContainerStats reads one-shot resource usage for running containers.
func (d *DockerCLI) ContainerStats(ctx context.Context) ([]ContainerSnapshot, error) {
	out, err := d.run(ctx, "stats", "--no-stream", "--no-trunc", "--format", "{{json .}}")
	if err != nil {
		return nil, err
	}

	var snaps []ContainerSnapshot
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s statsLine
		if err := json.Unmarshal(line, &s); err != nil {
			d.logger.Warn("skipping unparseable stats line", zap.Error(err))
			continue
		}
		used, limit := parseMemUsage(s.MemUsage)
		snaps = append(snaps, ContainerSnapshot{
			ID:          s.ID,
			Name:        s.Name,
			Status:      "running",
			MemoryUsed:  used,
			MemoryLimit: limit,
			CPUPercent:  parsePercent(s.CPUPerc),
		})
	}
	return snaps, nil
}

// firstName picks the first of a comma-separated Names field.
func firstName(names string) string {
	if i := strings.IndexByte(names, ','); i >= 0 {
		return names[:i]
	}
	return names
}

// parseLabelList parses docker's "k=v,k=v" label rendering.
func parseLabelList(s string) map[string]string {
	if s == "" {
		return nil
	}
	labels := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		labels[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return labels
}

// parseCreatedAt parses docker ps timestamps, which use a fixed layout
// with zone offset and abbreviation.
func parseCreatedAt(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05 -0700 MST", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parsePercent parses strings like "12.34%".
func parsePercent(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseMemUsage parses docker's "7.27MiB / 1.944GiB" usage rendering.
func parseMemUsage(s string) (used, limit uint64) {
	parts := strings.SplitN(s, "/", 2)
	used = parseBytes(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		limit = parseBytes(strings.TrimSpace(parts[1]))
	}
	return used, limit
}

var byteUnits = []struct {
	suffix string
	factor float64
}{
	{"TiB", 1 << 40}, {"GiB", 1 << 30}, {"MiB", 1 << 20}, {"KiB", 1 << 10},
	{"TB", 1e12}, {"GB", 1e9}, {"MB", 1e6}, {"kB", 1e3}, {"KB", 1e3},
	{"B", 1},
}

// parseBytes parses a human-readable size like "512MiB" or "1.2GB".
func parseBytes(s string) uint64 {
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			num := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			v, err := strconv.ParseFloat(num, 64)
			if err != nil || v < 0 {
				return 0
			}
			return uint64(v * u.factor)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return uint64(v)
}
