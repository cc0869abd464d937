package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/llamafarm/pkg/events"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayout(t *testing.T) *projectdir.Layout {
	t.Helper()
	return projectdir.New(t.TempDir())
}

func TestOrchestrator_StartStop_NativeServiceReachesRunningThenStopped(t *testing.T) {
	healthSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthSrv.Close()

	layout := newTestLayout(t)
	bus := events.NewBus()
	orch := New(Config{
		Layout: layout,
		Bus:    bus,
		Services: map[string]ServiceSpec{
			ServiceWorker: {
				Mode:           types.ServiceModeNative,
				Command:        []string{"sleep", "30"},
				HealthEndpoint: healthSrv.URL,
				Deadline:       2 * time.Second,
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, orch.Start(ctx, ServiceWorker))

	statuses := orch.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, types.ServiceStateRunning, statuses[0].State)
	assert.NotZero(t, statuses[0].PID)

	require.NoError(t, orch.Stop(ServiceWorker))

	statuses = orch.Status()
	assert.Equal(t, types.ServiceStateStopped, statuses[0].State)
	assert.Zero(t, statuses[0].PID)
}

func TestOrchestrator_Start_IsIdempotentForAlreadyRunningService(t *testing.T) {
	healthSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthSrv.Close()

	layout := newTestLayout(t)
	orch := New(Config{
		Layout: layout,
		Bus:    events.NewBus(),
		Services: map[string]ServiceSpec{
			ServiceWorker: {
				Mode:           types.ServiceModeNative,
				Command:        []string{"sleep", "30"},
				HealthEndpoint: healthSrv.URL,
				Deadline:       2 * time.Second,
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, orch.Start(ctx, ServiceWorker))
	firstPID := orch.Status()[0].PID

	require.NoError(t, orch.Start(ctx, ServiceWorker))
	assert.Equal(t, firstPID, orch.Status()[0].PID, "starting an already-running service must not respawn it")

	_ = orch.Stop(ServiceWorker)
}

func TestOrchestrator_Start_MarksServiceFailedWhenHealthNeverComesUp(t *testing.T) {
	layout := newTestLayout(t)
	orch := New(Config{
		Layout: layout,
		Bus:    events.NewBus(),
		Services: map[string]ServiceSpec{
			// Seed Scenario S6: nothing listens on this endpoint, modeling
			// a port conflict or a service that never opens its port.
			ServiceServer: {
				Mode:           types.ServiceModeNative,
				Command:        []string{"sleep", "30"},
				HealthEndpoint: "http://127.0.0.1:1/health",
				Deadline:       300 * time.Millisecond,
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := orch.Start(ctx, ServiceServer)
	require.Error(t, err)

	statuses := orch.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, types.ServiceStateFailed, statuses[0].State)

	_ = orch.Stop(ServiceServer)
}

func TestOrchestrator_Status_RunningStateImpliesLivePID(t *testing.T) {
	healthSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthSrv.Close()

	layout := newTestLayout(t)
	orch := New(Config{
		Layout: layout,
		Bus:    events.NewBus(),
		Services: map[string]ServiceSpec{
			ServiceWorker: {
				Mode:           types.ServiceModeNative,
				Command:        []string{"sleep", "30"},
				HealthEndpoint: healthSrv.URL,
				Deadline:       2 * time.Second,
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Start(ctx, ServiceWorker))
	defer orch.Stop(ServiceWorker)

	e, ok := orch.entryFor(ServiceWorker)
	require.True(t, ok)
	assert.Equal(t, types.ServiceStateRunning, e.desc.State)
	require.True(t, e.proc.IsRunning(), "status() reporting running must imply the pid resolves to a live process")
}

func TestOrchestrator_HealthReport_AggregatesWorstComponent(t *testing.T) {
	healthSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthSrv.Close()

	layout := newTestLayout(t)
	orch := New(Config{
		Layout: layout,
		Bus:    events.NewBus(),
		Services: map[string]ServiceSpec{
			ServiceWorker: {
				Mode:           types.ServiceModeNative,
				Command:        []string{"sleep", "30"},
				HealthEndpoint: healthSrv.URL,
				Deadline:       2 * time.Second,
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Start(ctx, ServiceWorker))
	defer orch.Stop(ServiceWorker)

	report := orch.HealthReport()
	assert.Equal(t, types.ComponentHealthy, report.Status)
	assert.Contains(t, report.Components, ServiceWorker)
}

func TestOrchestrator_NativeServiceWithoutHealthEndpointGetsPIDLivenessChecker(t *testing.T) {
	layout := newTestLayout(t)
	orch := New(Config{
		Layout: layout,
		Bus:    events.NewBus(),
		Services: map[string]ServiceSpec{
			// rag-worker has no HTTP health endpoint (spec.md §5); it must
			// still get a real checker so the reconciler's unhealthy-restart
			// path is reachable, instead of being "immediately healthy"
			// forever because e.checker stayed nil.
			ServiceWorker: {
				Mode:     types.ServiceModeNative,
				Command:  []string{"sleep", "30"},
				Deadline: 2 * time.Second,
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Start(ctx, ServiceWorker))
	defer orch.Stop(ServiceWorker)

	e, ok := orch.entryFor(ServiceWorker)
	require.True(t, ok)
	require.NotNil(t, e.checker, "a running native service with no HealthEndpoint must still get a checker")

	result := e.checker.Check(ctx)
	assert.True(t, result.Healthy, "pid-liveness check must report healthy for a running process")

	require.NoError(t, e.proc.Stop(2*time.Second))
	unhealthy := e.checker.Check(ctx)
	assert.False(t, unhealthy.Healthy, "pid-liveness check must report unhealthy once the process exits")
}

func TestOrchestrator_ServeHealth_ReturnsJSONBanner(t *testing.T) {
	layout := newTestLayout(t)
	orch := New(Config{Layout: layout, Bus: events.NewBus(), Services: map[string]ServiceSpec{}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	orch.ServeHealth().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status"`)
}
