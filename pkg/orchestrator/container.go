package orchestrator

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

// containerNamespace is the containerd namespace the orchestrator runs
// service containers under, distinct from any namespace a user's own
// containerd daemon might otherwise use.
const containerNamespace = "llamafarm"

// defaultSocketPath is the default containerd socket, reused verbatim
// from the teacher's runtime.DefaultSocketPath.
const defaultSocketPath = "/run/containerd/containerd.sock"

// containerRuntime lazily connects to containerd; wrapped instead of
// dialed once at package init so a native-only deployment never needs
// a reachable containerd socket. Grounded on the teacher's
// pkg/runtime.ContainerdRuntime, trimmed from the full container CRUD
// surface (volumes, secrets, DNS) down to what one of the three fixed
// services needs: pull, create, start, stop.
var containerRuntime struct {
	client *containerd.Client
}

func dialContainerd() (*containerd.Client, error) {
	if containerRuntime.client != nil {
		return containerRuntime.client, nil
	}
	client, err := containerd.New(defaultSocketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to containerd at %s: %w", defaultSocketPath, err)
	}
	containerRuntime.client = client
	return client, nil
}

// startContainerService pulls e.spec.Image (if not already present),
// creates a container named after the service id, and starts its task.
// The containerd client and OCI spec builder here are the teacher's
// own runtime dependency (github.com/containerd/containerd,
// github.com/opencontainers/runtime-spec), reused to run the
// server/worker/runtime images instead of user workload containers.
func startContainerService(ctx context.Context, e *entry) error {
	client, err := dialContainerd()
	if err != nil {
		return err
	}
	ctx = namespaces.WithNamespace(ctx, containerNamespace)

	image, err := client.GetImage(ctx, e.spec.Image)
	if err != nil {
		image, err = client.Pull(ctx, e.spec.Image, containerd.WithPullUnpack)
		if err != nil {
			return fmt.Errorf("pulling image %s for service %s: %w", e.spec.Image, e.desc.ServiceID, err)
		}
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(e.spec.Env),
	}

	container, err := client.NewContainer(
		ctx,
		e.desc.ServiceID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(e.desc.ServiceID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return fmt.Errorf("creating container for service %s: %w", e.desc.ServiceID, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("creating task for service %s: %w", e.desc.ServiceID, err)
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("starting task for service %s: %w", e.desc.ServiceID, err)
	}

	e.desc.ContainerID = container.ID()
	return nil
}

// stopContainerService signals a graceful SIGTERM and waits up to
// grace before the caller falls back to a force kill.
func stopContainerService(ctx context.Context, e *entry, grace time.Duration) error {
	if e.desc.ContainerID == "" {
		return nil
	}
	client, err := dialContainerd()
	if err != nil {
		return err
	}
	ctx = namespaces.WithNamespace(ctx, containerNamespace)

	container, err := client.LoadContainer(ctx, e.desc.ContainerID)
	if err != nil {
		return fmt.Errorf("loading container for service %s: %w", e.desc.ServiceID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No running task; nothing to stop.
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling container for service %s: %w", e.desc.ServiceID, err)
	}

	statusCh, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("waiting on container task for service %s: %w", e.desc.ServiceID, err)
	}
	select {
	case <-statusCh:
	case <-stopCtx.Done():
		return task.Kill(ctx, syscall.SIGKILL)
	}
	return nil
}
