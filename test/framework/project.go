package framework

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/llamafarm/pkg/client"
)

// DefaultProjectConfig returns a project configuration read from the
// environment, with sensible local defaults.
func DefaultProjectConfig() *ProjectConfig {
	binary := os.Getenv("LLAMAFARM_BINARY")
	if binary == "" {
		binary = "bin/llamafarm"
	}

	dataDir := os.Getenv("LLAMAFARM_TEST_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), fmt.Sprintf("llamafarm-test-%d", time.Now().UnixNano()))
	}

	return &ProjectConfig{
		Binary:      binary,
		DataDir:     dataDir,
		APIAddr:     "127.0.0.1:18088",
		MetricsAddr: "127.0.0.1:19090",
		LogLevel:    "info",
	}
}

// NewProject initializes a project directory (via `llamafarm init`) and
// returns a handle that can Start/Stop the services that serve it.
func NewProject(config *ProjectConfig, name string) (*Project, error) {
	if config == nil {
		config = DefaultProjectConfig()
	}
	if config.RuntimeURL == "" {
		return nil, fmt.Errorf("ProjectConfig.RuntimeURL must point at a Universal Runtime (see NewFakeRuntime)")
	}

	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating project dir: %w", err)
	}

	initProc := NewProcess(config.Binary)
	initProc.Args = []string{"init", config.DataDir, "--name", name}
	if err := initProc.Start(); err != nil {
		return nil, fmt.Errorf("starting init process: %w", err)
	}
	if err := initProc.Wait(); err != nil {
		return nil, fmt.Errorf("llamafarm init failed: %w\n%s", err, initProc.Logs())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Project{Config: config, ctx: ctx, cancel: cancel}, nil
}

// Start launches the `start` foreground process and waits for the
// api-server to accept connections.
func (p *Project) Start() error {
	process := NewProcess(p.Config.Binary)
	process.Args = []string{
		"start",
		"--cwd", p.Config.DataDir,
		"--api-addr", p.Config.APIAddr,
		"--metrics-addr", p.Config.MetricsAddr,
		"--runtime-url", p.Config.RuntimeURL,
		"--mode", "native",
	}

	if err := process.Start(); err != nil {
		return fmt.Errorf("failed to start llamafarm: %w", err)
	}
	p.process = process

	if err := p.waitForAPI(30 * time.Second); err != nil {
		return fmt.Errorf("api-server not ready: %w\n%s", err, process.Logs())
	}

	p.Client = client.New("http://" + p.Config.APIAddr)
	return nil
}

// Stop stops the project's services gracefully.
func (p *Project) Stop() error {
	if p.process == nil {
		return nil
	}
	return p.process.Stop()
}

// Cleanup stops the project (if running) and removes its data directory.
func (p *Project) Cleanup() error {
	if err := p.Stop(); err != nil {
		fmt.Printf("Warning: error during stop: %v\n", err)
	}
	p.cancel()

	if !p.Config.KeepOnFailure {
		if err := os.RemoveAll(p.Config.DataDir); err != nil {
			return fmt.Errorf("failed to remove data dir: %w", err)
		}
	}
	return nil
}

func (p *Project) waitForAPI(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	httpClient := &http.Client{Timeout: 2 * time.Second}
	url := "http://" + p.Config.APIAddr + "/rag/health"

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for api-server at %s: %w", url, ctx.Err())
		case <-ticker.C:
			resp, err := httpClient.Get(url)
			if err != nil {
				continue
			}
			resp.Body.Close()
			return nil
		}
	}
}
