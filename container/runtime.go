// Package container manages the lifetime of the Logstash container under
// test. The concrete Docker client sits behind the Runtime interface so the
// driver and coordinator can be unit-tested against an in-memory runtime.
package container

import "context"

// Image is the opaque identifier returned by a successful build.
type Image struct {
	ID string
}

// Container is one running instance of an image. Exactly one is created per
// run and exactly one stop is issued per run regardless of outcome.
type Container struct {
	ID string
}

// HealthStatus is the container's self-reported readiness signal.
type HealthStatus string

const (
	// HealthStarting means the health probe has not yet settled.
	HealthStarting HealthStatus = "starting"
	// HealthHealthy is the only status that gates traffic open.
	HealthHealthy HealthStatus = "healthy"
	// HealthUnhealthy is a terminal probe failure.
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthNone means the container reports no health field at all.
	HealthNone HealthStatus = ""
)

// Runtime is the capability surface this tool needs from a container runtime.
type Runtime interface {
	// BuildImage streams the artifact at archivePath to the runtime's build
	// endpoint and returns the resulting image.
	BuildImage(ctx context.Context, archivePath string, tag string) (Image, error)
	// CreateContainer declares a container with stdout/stderr attached, the
	// engine ports bound to the same-numbered loopback host ports, and
	// auto-removal set per the flag.
	CreateContainer(ctx context.Context, image Image, autoRemove bool) (Container, error)
	StartContainer(ctx context.Context, container Container) error
	// StopContainer is best-effort teardown; its error is reported as a
	// secondary error and never masks the run outcome.
	StopContainer(ctx context.Context, container Container) error
	// InspectHealth reads the container's reported health status.
	// HealthNone means the health field is absent.
	InspectHealth(ctx context.Context, container Container) (HealthStatus, error)
}
