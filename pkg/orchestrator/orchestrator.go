package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/events"
	"github.com/cuemby/llamafarm/pkg/health"
	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/metrics"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/types"
)

// Well-known service ids, in dependency order (spec.md §4.4 "Dependency
// order"): the worker must exist before the server can dispatch to it;
// the runtime is independent of both. Nothing starts the runtime on
// demand: Start brings it up only when a ServiceSpec is registered for it.
const (
	ServiceWorker  = "rag-worker"
	ServiceServer  = "api-server"
	ServiceRuntime = "universal-runtime"
)

// startOrder is Start's dependency order; Stop walks it in reverse.
var startOrder = []string{ServiceWorker, ServiceServer, ServiceRuntime}

// ServiceSpec is static configuration for one service: how to launch
// it and where to poll its health.
type ServiceSpec struct {
	Mode           types.ServiceMode
	Command        []string // native mode: binary + args
	Image          string   // container mode
	Env            []string
	HealthEndpoint string
	Deadline       time.Duration // health-poll deadline (spec.md §4.4 defaults: 30s server, 45s runtime)
}

// Config configures one Orchestrator instance.
type Config struct {
	Layout   *projectdir.Layout
	Bus      *events.Bus
	Services map[string]ServiceSpec // keyed by one of the Service* constants
}

// entry is the orchestrator's live bookkeeping for one service,
// combining its immutable ServiceDescriptor with the runtime handle
// (native process or container) and a health.Status tracker.
type entry struct {
	desc    types.ServiceDescriptor
	spec    ServiceSpec
	proc    *Process
	health  *health.Status
	checker health.Checker
}

// Orchestrator owns the lifecycle and health of the API server, the
// rag worker, and the Universal Runtime (spec.md §4.4). Its
// coordinating-struct shape (wires layout+services+bus together) is
// grounded on the teacher's manager.Manager, generalized from cluster
// state to a fixed set of three local services.
type Orchestrator struct {
	mu       sync.RWMutex
	layout   *projectdir.Layout
	bus      *events.Bus
	entries  map[string]*entry
	reconcil *Reconciler
}

// New constructs an Orchestrator. Services are registered but not
// started until Start is called.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		layout:  cfg.Layout,
		bus:     cfg.Bus,
		entries: make(map[string]*entry, len(cfg.Services)),
	}
	for id, spec := range cfg.Services {
		o.entries[id] = &entry{
			desc: types.ServiceDescriptor{
				ServiceID:      id,
				Mode:           spec.Mode,
				Command:        spec.Command,
				Image:          spec.Image,
				Env:            spec.Env,
				HealthEndpoint: spec.HealthEndpoint,
				State:          types.ServiceStateStopped,
				CreatedAt:      time.Now(),
			},
			spec:   spec,
			health: health.NewStatus(),
		}
		if spec.HealthEndpoint != "" {
			o.entries[id].checker = health.NewHTTPChecker(spec.HealthEndpoint)
		}
	}
	o.reconcil = NewReconciler(o)
	return o
}

// Start brings up every registered service in dependency order,
// idempotent per service: one already running is left alone (spec.md
// §4.4 Public contract).
func (o *Orchestrator) Start(ctx context.Context, serviceIDs ...string) error {
	if err := o.layout.Ensure(nil); err != nil {
		return apperr.TransportError("preparing project directory", err)
	}

	ids := serviceIDs
	if len(ids) == 0 {
		ids = startOrder
	}

	logger := log.WithComponent("orchestrator")
	for _, id := range orderedBy(startOrder, ids) {
		e, ok := o.entryFor(id)
		if !ok {
			continue
		}
		if e.desc.State == types.ServiceStateRunning {
			continue
		}
		if err := o.startOne(ctx, e); err != nil {
			logger.Error().Err(err).Str("service_id", id).Msg("service failed to start")
			return err
		}
	}
	o.reconcil.Start()
	return nil
}

func (o *Orchestrator) startOne(ctx context.Context, e *entry) error {
	o.mu.Lock()
	e.desc.State = types.ServiceStateStarting
	o.mu.Unlock()

	if e.spec.Mode == types.ServiceModeContainer {
		if err := startContainerService(ctx, e); err != nil {
			o.markFailed(e, err)
			return err
		}
	} else {
		logPath := o.layout.LogPath(e.desc.ServiceID)
		var binary string
		var args []string
		if len(e.spec.Command) > 0 {
			binary, args = e.spec.Command[0], e.spec.Command[1:]
		}
		proc := NewProcess(e.desc.ServiceID, binary, args, e.spec.Env, logPath)
		if err := proc.Start(); err != nil {
			o.markFailed(e, err)
			return err
		}
		e.proc = proc
		e.desc.PID = proc.PID()
		e.desc.LogPath = logPath

		// A native service with no HealthEndpoint still needs the
		// reconciler's unhealthy-restart path to be reachable (spec.md
		// §5's "last resort" worker restart): fall back to a pid-liveness
		// probe, re-created on every start since the pid changes on
		// restart.
		if e.spec.HealthEndpoint == "" {
			e.checker = health.NewExecChecker([]string{"kill", "-0", strconv.Itoa(e.desc.PID)})
		}
	}
	e.desc.StartedAt = time.Now()

	deadline := e.spec.Deadline
	if deadline == 0 {
		deadline = 30 * time.Second
		if e.desc.ServiceID == ServiceRuntime {
			deadline = 45 * time.Second
		}
	}
	if err := o.waitHealthyLocked(ctx, e, deadline); err != nil {
		o.markFailed(e, err)
		return err
	}

	o.mu.Lock()
	e.desc.State = types.ServiceStateRunning
	o.mu.Unlock()
	metrics.ServicesTotal.WithLabelValues(string(types.ServiceStateRunning)).Inc()
	o.publish(events.EventServiceStarted, e.desc.ServiceID)
	return nil
}

func (o *Orchestrator) markFailed(e *entry, cause error) {
	o.mu.Lock()
	e.desc.State = types.ServiceStateFailed
	o.mu.Unlock()
	metrics.ServicesTotal.WithLabelValues(string(types.ServiceStateFailed)).Inc()
	log.WithComponent("orchestrator").Error().Err(cause).Str("service_id", e.desc.ServiceID).Msg("service marked failed")
}

// Stop stops services in reverse dependency order, idempotent (spec.md
// §4.4).
func (o *Orchestrator) Stop(serviceIDs ...string) error {
	o.reconcil.Stop()

	ids := serviceIDs
	if len(ids) == 0 {
		ids = startOrder
	}
	ordered := orderedBy(startOrder, ids)
	for i := len(ordered) - 1; i >= 0; i-- {
		e, ok := o.entryFor(ordered[i])
		if !ok {
			continue
		}
		o.stopOne(e)
	}
	return nil
}

func (o *Orchestrator) stopOne(e *entry) {
	o.mu.Lock()
	if e.desc.State == types.ServiceStateStopped {
		o.mu.Unlock()
		return
	}
	e.desc.State = types.ServiceStateStopping
	o.mu.Unlock()

	const grace = 10 * time.Second
	var stopErr error
	if e.proc != nil {
		if stopErr = e.proc.Stop(grace); stopErr != nil {
			log.WithComponent("orchestrator").Warn().Err(stopErr).Str("service_id", e.desc.ServiceID).Msg("error stopping service")
		}
	} else if e.spec.Mode == types.ServiceModeContainer {
		if stopErr = stopContainerService(context.Background(), e, grace); stopErr != nil {
			log.WithComponent("orchestrator").Warn().Err(stopErr).Str("service_id", e.desc.ServiceID).Msg("error stopping container service")
		}
	}
	if stopErr != nil {
		// Not confirmed gone: keep the pid/container id and the STOPPING
		// state so a later Stop tries again.
		return
	}

	o.mu.Lock()
	e.desc.State = types.ServiceStateStopped
	e.desc.PID = 0
	e.desc.ContainerID = ""
	o.mu.Unlock()
	metrics.ServicesTotal.WithLabelValues(string(types.ServiceStateStopped)).Inc()
	o.publish(events.EventServiceStopped, e.desc.ServiceID)
}

// Status returns the status() row for every registered service (spec.md
// §4.4 Public contract).
func (o *Orchestrator) Status() []types.ServiceStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]types.ServiceStatus, 0, len(o.entries))
	for _, id := range startOrder {
		e, ok := o.entries[id]
		if !ok {
			continue
		}
		healthStatus := types.ComponentUnhealthy
		if e.health.Healthy {
			healthStatus = types.ComponentHealthy
		}
		if e.desc.Degraded {
			healthStatus = types.ComponentDegraded
		}
		uptime := time.Duration(0)
		if !e.desc.StartedAt.IsZero() && e.desc.State == types.ServiceStateRunning {
			uptime = time.Since(e.desc.StartedAt)
		}
		out = append(out, types.ServiceStatus{
			ServiceID: e.desc.ServiceID,
			State:     e.desc.State,
			PID:       e.desc.PID,
			Health:    healthStatus,
			Uptime:    uptime,
		})
	}
	return out
}

// ListServices implements metrics.ServiceLister.
func (o *Orchestrator) ListServices() []types.ServiceStatus {
	return o.Status()
}

// WaitHealthy polls serviceID's health endpoint until it reports
// healthy or deadline elapses (spec.md §4.4 Public contract).
func (o *Orchestrator) WaitHealthy(ctx context.Context, serviceID string, deadline time.Duration) error {
	e, ok := o.entryFor(serviceID)
	if !ok {
		return apperr.ConfigError(fmt.Sprintf("unknown service %q", serviceID), nil)
	}
	return o.waitHealthyLocked(ctx, e, deadline)
}

func (o *Orchestrator) waitHealthyLocked(ctx context.Context, e *entry, deadline time.Duration) error {
	if e.checker == nil {
		// No health endpoint configured: treat start as immediately
		// healthy once the process/container is up.
		return nil
	}
	return pollWithBackoff(ctx, deadline, func(checkCtx context.Context) (bool, error) {
		result := e.checker.Check(checkCtx)
		e.health.Update(result, health.DefaultConfig())
		// Gate on this poll's own result, not Status.Healthy: Status starts
		// optimistic and only flips unhealthy after several consecutive
		// failures, which would let a never-up service pass startup on
		// its first failed check.
		return result.Healthy, nil
	})
}

// HealthReport aggregates every service's last health.Status into the
// /health banner (spec.md §4.4 Health protocol).
func (o *Orchestrator) HealthReport() types.HealthReport {
	o.mu.RLock()
	defer o.mu.RUnlock()

	components := make(map[string]types.ComponentHealth, len(o.entries))
	overall := types.ComponentHealthy
	for _, id := range startOrder {
		e, ok := o.entries[id]
		if !ok {
			continue
		}
		status := types.ComponentHealthy
		if !e.health.Healthy {
			status = types.ComponentUnhealthy
			overall = types.ComponentUnhealthy
		} else if e.desc.Degraded && overall != types.ComponentUnhealthy {
			status = types.ComponentDegraded
			overall = types.ComponentDegraded
		}
		components[id] = types.ComponentHealth{
			Status:    status,
			LatencyMS: e.health.LastResult.Duration.Milliseconds(),
			Message:   e.health.LastResult.Message,
		}
	}
	return types.HealthReport{Status: overall, Components: components}
}

// ServeHealth renders HealthReport as the HTTP handler backing
// GET /health (pkg/orchestrator/health_endpoint.go).
func (o *Orchestrator) ServeHealth() http.Handler {
	return healthHandler(o)
}

func (o *Orchestrator) entryFor(id string) (*entry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	return e, ok
}

func (o *Orchestrator) publish(t events.EventType, serviceID string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(&events.Event{Type: t, Message: serviceID, Metadata: map[string]string{"service_id": serviceID}})
}

// orderedBy filters order down to the ids present in requested,
// preserving order's sequence; an empty requested keeps everything.
func orderedBy(order, requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, id := range requested {
		want[id] = true
	}
	out := make([]string, 0, len(order))
	for _, id := range order {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}
