package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeRunner returns canned output keyed by the first argument.
type fakeRunner struct {
	outputs map[string]string
	err     error
	calls   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return "", "command failed", f.err
	}
	return f.outputs[args[0]], "", nil
}

func TestDockerCLI_ListContainers(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"ps": `{"ID":"abc123","Names":"sandbox-1","State":"Exited","Labels":"alphaloop.sandbox=true,other=x","CreatedAt":"2026-08-01 10:30:00 +0000 UTC"}
{"ID":"def456","Names":"web,web-alias","State":"running","Labels":"","CreatedAt":"2026-08-01 11:00:00 +0000 UTC"}
not json at all
`,
	}}
	cli := NewDockerCLI("docker", runner, nil)

	snaps, err := cli.ListContainers(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 containers with the bad line skipped, got %d", len(snaps))
	}

	first := snaps[0]
	if first.ID != "abc123" || first.Name != "sandbox-1" {
		t.Errorf("unexpected first container %+v", first)
	}
	if first.Status != "exited" {
		t.Errorf("expected state lowered to %q, got %q", "exited", first.Status)
	}
	if !first.Owned() {
		t.Error("expected ownership label to be parsed")
	}
	if first.CreatedAt.IsZero() {
		t.Error("expected created timestamp to be parsed")
	}

	if snaps[1].Name != "web" {
		t.Errorf("expected first of comma-separated names, got %q", snaps[1].Name)
	}
	if snaps[1].Owned() {
		t.Error("expected unlabeled container not to be owned")
	}

	// The --all flag must be forwarded.
	if args := runner.calls[0]; args[len(args)-1] != "--all" {
		t.Errorf("expected --all in args, got %v", args)
	}
}

func TestDockerCLI_ListContainersUnavailable(t *testing.T) {
	runner := &fakeRunner{err: errors.New("connection refused")}
	cli := NewDockerCLI("docker", runner, nil)

	_, err := cli.ListContainers(context.Background(), false)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDockerCLI_InspectContainer(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"inspect": `[{"Id":"abc123","Name":"/sandbox-1","Created":"2026-08-01T10:30:00.123456789Z",
"State":{"Status":"Exited"},
"Config":{"Labels":{"alphaloop.sandbox":"true"}},
"HostConfig":{"Memory":536870912}}]`,
	}}
	cli := NewDockerCLI("docker", runner, nil)

	snap, err := cli.InspectContainer(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Name != "sandbox-1" {
		t.Errorf("expected leading slash stripped, got %q", snap.Name)
	}
	if snap.Status != "exited" {
		t.Errorf("expected status %q, got %q", "exited", snap.Status)
	}
	if !snap.Owned() {
		t.Error("expected inspect labels to carry ownership")
	}
	if snap.MemoryLimit != 512<<20 {
		t.Errorf("expected memory limit 512MiB, got %d", snap.MemoryLimit)
	}
	want := time.Date(2026, 8, 1, 10, 30, 0, 123456789, time.UTC)
	if !snap.CreatedAt.Equal(want) {
		t.Errorf("expected created %v, got %v", want, snap.CreatedAt)
	}
}

func TestDockerCLI_InspectContainerNotFound(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"inspect": "[]"}}
	cli := NewDockerCLI("docker", runner, nil)

	if _, err := cli.InspectContainer(context.Background(), "gone"); err == nil {
		t.Error("expected error for missing container")
	}
}

func TestDockerCLI_RemoveContainerForce(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"rm": ""}}
	cli := NewDockerCLI("podman", runner, nil)

	if err := cli.RemoveContainer(context.Background(), "abc123", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := runner.calls[0]
	if args[0] != "podman" {
		t.Errorf("expected configured binary, got %v", args)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "rm --force abc123") {
		t.Errorf("expected forced removal args, got %q", joined)
	}
}

func TestDockerCLI_ContainerStats(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"stats": `{"ID":"abc123","Name":"sandbox-1","CPUPerc":"12.34%","MemUsage":"7.27MiB / 1.944GiB"}
`,
	}}
	cli := NewDockerCLI("docker", runner, nil)

	stats, err := cli.ContainerStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 stats line, got %d", len(stats))
	}
	s := stats[0]
	if s.CPUPercent != 12.34 {
		t.Errorf("expected cpu 12.34, got %g", s.CPUPercent)
	}
	if s.MemoryUsed != scaled(7.27, 1<<20) {
		t.Errorf("expected memory used ~7.27MiB, got %d", s.MemoryUsed)
	}
	if s.MemoryLimit != scaled(1.944, 1<<30) {
		t.Errorf("expected memory limit ~1.944GiB, got %d", s.MemoryLimit)
	}
}

// scaled mirrors the float multiply-then-truncate done during size parsing.
func scaled(v, factor float64) uint64 {
	return uint64(v * factor)
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"512B", 512},
		{"1KiB", 1024},
		{"7.27MiB", scaled(7.27, 1<<20)},
		{"1.944GiB", scaled(1.944, 1<<30)},
		{"2TB", 2e12},
		{"1.5kB", 1500},
		{"100", 100},
		{"garbage", 0},
		{"-5MiB", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseBytes(tt.in); got != tt.want {
			t.Errorf("parseBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.34%", 12.34},
		{" 0.00% ", 0},
		{"100%", 100},
		{"junk", 0},
	}
	for _, tt := range tests {
		if got := parsePercent(tt.in); got != tt.want {
			t.Errorf("parsePercent(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestParseLabelList(t *testing.T) {
	got := parseLabelList("a=1,b=2,malformed,c=3")
	if len(got) != 3 || got["a"] != "1" || got["c"] != "3" {
		t.Errorf("unexpected labels %v", got)
	}
	if parseLabelList("") != nil {
		t.Error("expected nil for empty label string")
	}
}

func TestContainerSnapshot_Owned(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{"false", false},
		{"1", false},
		{"", false},
	}
	for _, tt := range tests {
		c := ContainerSnapshot{Labels: map[string]string{OwnershipLabel: tt.value}}
		if got := c.Owned(); got != tt.want {
			t.Errorf("Owned() with label %q = %v, want %v", tt.value, got, tt.want)
		}
	}
	if (ContainerSnapshot{}).Owned() {
		t.Error("expected container without labels not to be owned")
	}
}
