package container

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	dockertypes "github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

// DockerConfig carries the host-side port bindings for the container under
// test. Both ports are bound to the same-numbered ports on loopback.
type DockerConfig struct {
	InputPort int
	APIPort   int
	HostIP    string
	Log       log.Logger
}

// DockerRuntime implements Runtime against the local Docker daemon.
type DockerRuntime struct {
	cli *client.Client
	cfg DockerConfig
	log log.Logger
}

var _ Runtime = (*DockerRuntime)(nil)

// NewDockerRuntime connects to the Docker daemon using the standard
// environment configuration.
func NewDockerRuntime(cfg DockerConfig) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, types.NewContainerLifecycleError("connect", errors.Wrap(err, "connecting to the Docker API"))
	}
	if cfg.HostIP == "" {
		cfg.HostIP = "127.0.0.1"
	}
	return &DockerRuntime{cli: cli, cfg: cfg, log: cfg.Log}, nil
}

// BuildImage streams the artifact to the daemon's build endpoint and consumes
// the progress stream until it yields an image identifier.
func (d *DockerRuntime) BuildImage(ctx context.Context, archivePath string, tag string) (Image, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return Image{}, types.NewIOError(archivePath, errors.Wrap(err, "opening artifact"))
	}
	defer f.Close()

	resp, err := d.cli.ImageBuild(ctx, f, dockertypes.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return Image{}, types.NewBuildTransportError(errors.Wrap(err, "submitting build context"))
	}
	defer resp.Body.Close()

	id, err := scanBuildStream(resp.Body, d.log)
	if err != nil {
		return Image{}, err
	}
	d.log.Info("Built container image", "image", id)
	return Image{ID: id}, nil
}

// buildMessage is one JSON document of the build progress stream.
type buildMessage struct {
	Stream string `json:"stream"`
	Aux    *struct {
		ID string `json:"ID"`
	} `json:"aux"`
	Error       string `json:"error"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// scanBuildStream reads build progress until EOF. A structured error in the
// stream is surfaced as a stream BuildError; a decode failure is a transport
// BuildError. Absence of any image identifier by stream end is fatal.
func scanBuildStream(r io.Reader, logger log.Logger) (string, error) {
	dec := json.NewDecoder(r)
	var imageID string
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return "", types.NewBuildTransportError(errors.Wrap(err, "decoding build progress"))
		}
		switch {
		case msg.Error != "":
			detail := msg.Error
			if msg.ErrorDetail != nil && msg.ErrorDetail.Message != "" {
				detail = msg.ErrorDetail.Message
			}
			return "", types.NewBuildStreamError(errors.New(detail))
		case msg.Aux != nil && msg.Aux.ID != "":
			imageID = msg.Aux.ID
		case msg.Stream != "" && logger != nil:
			logger.Debug("build", "output", msg.Stream)
		}
	}
	if imageID == "" {
		return "", types.NewBuildStreamError(errors.New("build stream ended without an image identifier"))
	}
	return imageID, nil
}

// CreateContainer declares the container under test with both engine ports
// published on loopback and host.docker.internal resolvable, so the engine
// can reach the response collector on the host.
func (d *DockerRuntime) CreateContainer(ctx context.Context, image Image, autoRemove bool) (Container, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range []int{d.cfg.InputPort, d.cfg.APIPort} {
		port, err := nat.NewPort("tcp", fmt.Sprintf("%d", p))
		if err != nil {
			return Container{}, types.NewContainerLifecycleError("create", errors.Wrap(err, "declaring port binding"))
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{
			HostIP:   d.cfg.HostIP,
			HostPort: fmt.Sprintf("%d", p),
		}}
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&dockercontainer.Config{
			Image:        image.ID,
			AttachStdout: true,
			AttachStderr: true,
			ExposedPorts: exposed,
		},
		&dockercontainer.HostConfig{
			AutoRemove:   autoRemove,
			PortBindings: bindings,
			ExtraHosts:   []string{"host.docker.internal:host-gateway"},
		},
		nil, nil, "")
	if err != nil {
		return Container{}, types.NewContainerLifecycleError("create", errors.Wrap(err, "creating the container"))
	}
	d.log.Debug("Created container", "id", resp.ID)
	return Container{ID: resp.ID}, nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, container Container) error {
	if err := d.cli.ContainerStart(ctx, container.ID, dockercontainer.StartOptions{}); err != nil {
		return types.NewContainerLifecycleError("start", errors.Wrap(err, "starting the container"))
	}
	return nil
}

func (d *DockerRuntime) StopContainer(ctx context.Context, container Container) error {
	if err := d.cli.ContainerStop(ctx, container.ID, dockercontainer.StopOptions{}); err != nil {
		return types.NewContainerLifecycleError("stop", errors.Wrap(err, "stopping the container"))
	}
	return nil
}

// InspectHealth reads the nested health status field from the container's
// inspect response. Readiness is never assumed, only observed.
func (d *DockerRuntime) InspectHealth(ctx context.Context, container Container) (HealthStatus, error) {
	inspect, err := d.cli.ContainerInspect(ctx, container.ID)
	if err != nil {
		return HealthNone, types.NewContainerLifecycleError("inspect", errors.Wrap(err, "inspecting the container"))
	}
	if inspect.State == nil || inspect.State.Health == nil {
		return HealthNone, nil
	}
	return HealthStatus(inspect.State.Health.Status), nil
}
