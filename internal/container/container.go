// Package container exposes the running-container handles loadrig consumes.
//
// loadrig never starts or stops containers. A [ServiceHandle] is borrowed from
// whatever manages the container lifecycle (a test suite, a CI job) and is only
// consulted for the externally reachable port of an internal listening port.
package container

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMapping is returned when a handle has no host binding for a port.
var ErrNoMapping = errors.New("no port mapping")

// ServiceHandle is a reference to a running containerized service.
type ServiceHandle interface {
	// MappedPort returns the host port bound to internalPort.
	MappedPort(ctx context.Context, internalPort int) (int, error)
	// Image returns a human-readable image identifier used for logging.
	Image() string
}

// Static is a ServiceHandle backed by a fixed port table.
type Static struct {
	ImageName string
	Ports     map[int]int
}

// NewStatic creates a Static handle for image with the given internal->external ports.
func NewStatic(image string, ports map[int]int) *Static {
	copied := make(map[int]int, len(ports))
	for k, v := range ports {
		copied[k] = v
	}
	return &Static{ImageName: image, Ports: copied}
}

func (s *Static) MappedPort(_ context.Context, internalPort int) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("port %d: %w", internalPort, ErrNoMapping)
	}
	port, ok := s.Ports[internalPort]
	if !ok {
		return 0, fmt.Errorf("port %d: %w", internalPort, ErrNoMapping)
	}
	return port, nil
}

func (s *Static) Image() string {
	if s == nil {
		return ""
	}
	return s.ImageName
}

// ParsePortMap parses "internal=external" pairs such as "8080=32768".
func ParsePortMap(pairs map[string]string) (map[int]int, error) {
	result := make(map[int]int, len(pairs))
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		internal, err := parsePort(k)
		if err != nil {
			return nil, fmt.Errorf("port map key %q: %w", k, err)
		}
		external, err := parsePort(pairs[k])
		if err != nil {
			return nil, fmt.Errorf("port map value for %q: %w", k, err)
		}
		result[internal] = external
	}
	return result, nil
}

func parsePort(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "/tcp")
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
