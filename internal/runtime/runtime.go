// Package runtime launches tool processes. Two runtimes exist: native forks
// a host process, container runs the tool image through the Docker Engine
// API. Both hand back the same Process shape, so callers never care which
// one did the work.
package runtime

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/models"
)

// Process is one running tool instance.
type Process interface {
	// Stdin is the tool's input. Callers write the request line and close.
	Stdin() io.WriteCloser
	// Stdout streams the tool's output.
	Stdout() io.Reader
	// Kill tears down the whole instance, process tree or container.
	Kill()
	// Wait blocks until the instance has exited.
	Wait() error
}

// Runtime spawns tool instances. The name is the configured tool name and
// is only used for logging and container labelling.
type Runtime interface {
	Spawn(ctx context.Context, name string, spec models.ToolSpec) (Process, error)
}

// Options carries the host paths runtimes expose to tools.
type Options struct {
	WorkspaceRoot string
	ToolsRoot     string
}

// Set bundles the configured runtimes and picks one per tool spec.
type Set struct {
	native *Native
	docker *Docker
}

func NewSet(opts Options, log *logrus.Logger) *Set {
	return &Set{
		native: NewNative(opts, log),
		docker: NewDocker(opts, log),
	}
}

// For returns the runtime responsible for the spec.
func (s *Set) For(spec models.ToolSpec) (Runtime, error) {
	switch spec.Runtime {
	case models.RuntimeNative:
		return s.native, nil
	case models.RuntimeContainer:
		return s.docker, nil
	default:
		return nil, fmt.Errorf("invalid runtime: %s", spec.Runtime)
	}
}

// Ready reports whether the container runtime can serve. Native tools need
// no probe, so this is just the Docker daemon ping.
func (s *Set) Ready(ctx context.Context) error {
	return s.docker.Ready(ctx)
}

// envPairs flattens a tool's configured environment, sorted so spawn
// arguments stay stable between runs.
func envPairs(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(env))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}
