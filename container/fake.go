package container

import (
	"context"
	"sync"
)

// FakeRuntime is an in-memory Runtime used to test the driver and the run
// coordinator without a Docker daemon.
type FakeRuntime struct {
	mu sync.Mutex

	// HealthSequence is consumed one entry per InspectHealth call; the last
	// entry repeats once the sequence is exhausted.
	HealthSequence []HealthStatus

	BuildErr  error
	CreateErr error
	StartErr  error
	StopErr   error

	BuildCalls   int
	CreateCalls  int
	StartCalls   int
	StopCalls    int
	InspectCalls int

	LastTag        string
	LastAutoRemove bool
}

var _ Runtime = (*FakeRuntime)(nil)

func (f *FakeRuntime) BuildImage(_ context.Context, _ string, tag string) (Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BuildCalls++
	f.LastTag = tag
	if f.BuildErr != nil {
		return Image{}, f.BuildErr
	}
	return Image{ID: "sha256:fake"}, nil
}

func (f *FakeRuntime) CreateContainer(_ context.Context, _ Image, autoRemove bool) (Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	f.LastAutoRemove = autoRemove
	if f.CreateErr != nil {
		return Container{}, f.CreateErr
	}
	return Container{ID: "fake-container"}, nil
}

func (f *FakeRuntime) StartContainer(context.Context, Container) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartCalls++
	return f.StartErr
}

func (f *FakeRuntime) StopContainer(context.Context, Container) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	return f.StopErr
}

func (f *FakeRuntime) InspectHealth(context.Context, Container) (HealthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InspectCalls++
	if len(f.HealthSequence) == 0 {
		return HealthNone, nil
	}
	status := f.HealthSequence[0]
	if len(f.HealthSequence) > 1 {
		f.HealthSequence = f.HealthSequence[1:]
	}
	return status, nil
}
