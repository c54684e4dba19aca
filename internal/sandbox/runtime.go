// Package sandbox talks to the container runtime that hosts generated
// strategy code. The observability core depends only on the Runtime
// interface here; the concrete client shells out to the docker (or podman)
// binary so the core carries no runtime SDK.
package sandbox

import (
	"context"
	"errors"
	"strings"
	"time"
)

// OwnershipLabel marks containers created by the strategy sandbox. Only
// containers whose label value equals "true" (case-insensitively) are ever
// considered for cleanup.
const OwnershipLabel = "alphaloop.sandbox"

// ErrUnavailable is returned when the container runtime cannot be reached.
// Callers are expected to degrade to a no-op rather than fail.
var ErrUnavailable = errors.New("sandbox: container runtime unavailable")

// ContainerSnapshot is a read-only projection of runtime state for one
// container. It is never cached beyond the query that produced it.
type ContainerSnapshot struct {
	ID          string
	Name        string
	Status      string
	MemoryUsed  uint64
	MemoryLimit uint64
	CPUPercent  float64
	CreatedAt   time.Time
	Labels      map[string]string
}

// Owned reports whether the snapshot carries the sandbox ownership label.
func (c ContainerSnapshot) Owned() bool {
	return labelTrue(c.Labels[OwnershipLabel])
}

// Runtime is the minimal container runtime surface the monitors need.
type Runtime interface {
	// ListContainers enumerates containers; all includes stopped ones.
	ListContainers(ctx context.Context, all bool) ([]ContainerSnapshot, error)
	// InspectContainer fetches the current state of a single container.
	InspectContainer(ctx context.Context, id string) (*ContainerSnapshot, error)
	// RemoveContainer removes a container; force stops it first if needed.
	RemoveContainer(ctx context.Context, id string, force bool) error
	// ContainerStats returns resource usage for running containers.
	ContainerStats(ctx context.Context) ([]ContainerSnapshot, error)
}

func labelTrue(v string) bool {
	return strings.EqualFold(v, "true")
}
