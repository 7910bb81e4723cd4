package container

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Inspector is the subset of the Docker Engine API used by Docker.
type Inspector interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Docker is a ServiceHandle for a container managed by a Docker daemon.
type Docker struct {
	api   Inspector
	id    string
	image string
}

// NewDocker creates a handle for the container identified by id (name or ID).
// The image name is read eagerly so that it is available for logging even when
// the port lookup later fails.
func NewDocker(ctx context.Context, api Inspector, id string) (*Docker, error) {
	if api == nil {
		return nil, fmt.Errorf("docker inspector is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("container id is required")
	}
	info, err := api.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", id, err)
	}
	image := id
	if info.Config != nil && info.Config.Image != "" {
		image = info.Config.Image
	}
	return &Docker{api: api, id: id, image: image}, nil
}

// NewDockerFromEnv connects to the daemon configured by DOCKER_HOST and friends.
func NewDockerFromEnv(ctx context.Context, id string) (*Docker, func() error, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, fmt.Errorf("docker client: %w", err)
	}
	handle, err := NewDocker(ctx, cli, id)
	if err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	return handle, cli.Close, nil
}

func (d *Docker) Image() string {
	return d.image
}

// MappedPort re-inspects the container so that a restarted container's new
// bindings are picked up.
func (d *Docker) MappedPort(ctx context.Context, internalPort int) (int, error) {
	info, err := d.api.ContainerInspect(ctx, d.id)
	if err != nil {
		return 0, fmt.Errorf("inspect container %s: %w", d.id, err)
	}
	if info.ContainerJSONBase != nil && info.State != nil && !info.State.Running {
		return 0, fmt.Errorf("container %s is %s: %w", d.id, info.State.Status, ErrNoMapping)
	}
	if info.NetworkSettings == nil {
		return 0, fmt.Errorf("container %s has no network settings: %w", d.id, ErrNoMapping)
	}

	port, err := nat.NewPort("tcp", strconv.Itoa(internalPort))
	if err != nil {
		return 0, err
	}
	for _, binding := range info.NetworkSettings.Ports[port] {
		if binding.HostPort == "" {
			continue
		}
		hostPort, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			return 0, fmt.Errorf("container %s port %s: invalid host port %q", d.id, port, binding.HostPort)
		}
		return hostPort, nil
	}
	return 0, fmt.Errorf("container %s port %s: %w", d.id, port, ErrNoMapping)
}
