// Package endpoint resolves the externally reachable port of a containerized service.
package endpoint

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/torosent/loadrig/internal/container"
	"github.com/torosent/loadrig/internal/logging"
)

// DefaultInternalPort is the port the service under test listens on inside its container.
const DefaultInternalPort = 8080

// ResolutionError reports that no usable mapping exists for an internal port.
type ResolutionError struct {
	Image        string
	InternalPort int
	Err          error
}

func (e *ResolutionError) Error() string {
	image := e.Image
	if image == "" {
		image = "<unknown image>"
	}
	return fmt.Sprintf("resolve port %d of %s: %v", e.InternalPort, image, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver looks up mapped ports on a borrowed ServiceHandle.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver. A nil logger disables diagnostics.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logging.OrNop(logger)}
}

// Resolve returns the external port the handle maps to internalPort.
func (r *Resolver) Resolve(ctx context.Context, handle container.ServiceHandle, internalPort int) (int, error) {
	if handle == nil {
		return 0, &ResolutionError{InternalPort: internalPort, Err: errors.New("service handle is nil")}
	}
	image := handle.Image()
	port, err := handle.MappedPort(ctx, internalPort)
	if err != nil {
		return 0, &ResolutionError{Image: image, InternalPort: internalPort, Err: err}
	}
	if port < 1 || port > 65535 {
		return 0, &ResolutionError{
			Image:        image,
			InternalPort: internalPort,
			Err:          fmt.Errorf("mapped port %d out of range: %w", port, container.ErrNoMapping),
		}
	}

	logging.WithSpan(ctx, r.logger).Info("container accessible",
		zap.String("image", image),
		zap.Int("internal_port", internalPort),
		zap.Int("external_port", port),
	)
	return port, nil
}
