package types

import (
	"errors"
	"fmt"
)

// The error types below form the failure taxonomy of the whole tool. Each
// lower-level failure is wrapped with the operation's context and surfaced
// upward; callers select on them with errors.As to decide exit codes and
// reporting.

// ConfigurationError covers template rendering, parameter context and naming
// failures while assembling the build artifact.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func NewConfigurationError(op string, err error) *ConfigurationError {
	return &ConfigurationError{Op: op, Err: err}
}

// IOError covers missing or unreadable fixture, rule and auxiliary files.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func NewIOError(path string, err error) *IOError {
	return &IOError{Path: path, Err: err}
}

// BuildErrorKind distinguishes a structured failure reported inside the image
// build progress stream from a transport-level failure talking to the build
// endpoint.
type BuildErrorKind string

const (
	BuildErrorStream    BuildErrorKind = "stream"
	BuildErrorTransport BuildErrorKind = "transport"
)

// BuildError is a failure to produce a container image from the artifact.
type BuildError struct {
	Kind BuildErrorKind
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("image build error (%s): %v", e.Kind, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func NewBuildStreamError(err error) *BuildError {
	return &BuildError{Kind: BuildErrorStream, Err: err}
}

func NewBuildTransportError(err error) *BuildError {
	return &BuildError{Kind: BuildErrorTransport, Err: err}
}

// ContainerLifecycleError covers create/start/stop failures.
type ContainerLifecycleError struct {
	Op  string
	Err error
}

func (e *ContainerLifecycleError) Error() string {
	return fmt.Sprintf("container %s failed: %v", e.Op, e.Err)
}

func (e *ContainerLifecycleError) Unwrap() error { return e.Err }

func NewContainerLifecycleError(op string, err error) *ContainerLifecycleError {
	return &ContainerLifecycleError{Op: op, Err: err}
}

// HealthCheckError is returned when the container never reports healthy: the
// retry bound was exhausted, the reported status was unexpected, or the health
// field was absent entirely.
type HealthCheckError struct {
	Status  string // last observed health status, empty when absent
	Retries int    // attempts consumed before giving up
	Err     error
}

func (e *HealthCheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("health check failed: %v", e.Err)
	}
	if e.Status == "" {
		return "health check failed: container reports no health status"
	}
	return fmt.Sprintf("health check failed: unexpected status %q", e.Status)
}

func (e *HealthCheckError) Unwrap() error { return e.Err }

// CommunicationError covers HTTP send failures and a closed or exhausted event
// queue, including the "no output produced" case.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("communication error: %s: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func NewCommunicationError(op string, err error) *CommunicationError {
	return &CommunicationError{Op: op, Err: err}
}

// ErrNoOutput signals that the event queue ended before the engine produced an
// output event for a submitted fixture.
var ErrNoOutput = errors.New("no output event produced")

// ComparisonError is a strict-mode mismatch between the emitted event and the
// expected fixture of one test case.
type ComparisonError struct {
	Case     string
	Diff     string
	Actual   string
	Expected string
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("test case %q: emitted event does not match expected fixture:\n%s\n\nactual:\n%s\n\nexpected:\n%s",
		e.Case, e.Diff, e.Actual, e.Expected)
}

// IsComparisonError reports whether err is or wraps a ComparisonError.
func IsComparisonError(err error) bool {
	var cmpErr *ComparisonError
	return err != nil && errors.As(err, &cmpErr)
}
