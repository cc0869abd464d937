package framework

import (
	"context"
	"time"

	"github.com/cuemby/llamafarm/pkg/client"
)

// ProjectConfig configures a single-project integration test harness.
type ProjectConfig struct {
	// Binary is the path to the llamafarm binary under test.
	Binary string
	// DataDir is the project directory (manifest, result store, queue).
	DataDir string
	// APIAddr is the address the api-server listens on.
	APIAddr string
	// MetricsAddr serves /metrics, /health, and the services control surface.
	MetricsAddr string
	// RuntimeURL points at the Universal Runtime dependency (real or fake).
	RuntimeURL string
	// LogLevel is passed through to the spawned llamafarm process.
	LogLevel string
	// KeepOnFailure leaves DataDir on disk for post-mortem inspection.
	KeepOnFailure bool
}

// Project represents a running llamafarm project: one `start` process
// owning the worker and api-server, plus a client pointed at it.
type Project struct {
	Config *ProjectConfig
	Client *client.Client

	process *Process
	ctx     context.Context
	cancel  context.CancelFunc
}

// TestingT is an interface matching testing.T, letting assertions run
// outside of *testing.T (e.g. from a scenario runner).
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}

// DatasetSpec describes a dataset to seed into a test project.
type DatasetSpec struct {
	Name       string
	SourcePath string
	Database   string
}

// TestContext bundles a test's context and cleanup registry.
type TestContext struct {
	T       TestingT
	Ctx     context.Context
	Cancel  context.CancelFunc
	Timeout time.Duration

	cleanup []func()
}
