package main

import (
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cuemby/llamafarm/pkg/client"
	"github.com/cuemby/llamafarm/pkg/config"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://127.0.0.1:8088"

// projectDir resolves --cwd against the process's working directory.
func projectDir(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		return cwd, nil
	}
	return os.Getwd()
}

// serverURL resolves --server-url against its environment override,
// falling back to the default local address.
func serverURL(cmd *cobra.Command) string {
	flagValue, _ := cmd.Flags().GetString("server-url")
	if url := config.ServerURL(flagValue); url != "" {
		return url
	}
	return defaultServerURL
}

// newClient builds an api-server client for the resolved --server-url,
// auto-starting the orchestrator first if --auto-start is set (the
// default) and the api-server isn't already reachable (spec.md §6).
func newClient(cmd *cobra.Command) *client.Client {
	url := serverURL(cmd)
	if autoStart, _ := cmd.Flags().GetBool("auto-start"); autoStart {
		ensureStarted(cmd, url)
	}
	return client.New(url)
}

// ensureStarted spawns `llamafarm start` as a detached background
// process and waits up to --start-deadline for the api-server to
// answer, doing nothing if it already is reachable. Spawn/health
// failures are left for the actual client call to surface, since a
// best-effort auto-start shouldn't mask the user's real command.
func ensureStarted(cmd *cobra.Command, url string) {
	if isReachable(url) {
		return
	}

	dir, err := projectDir(cmd)
	if err != nil {
		return
	}
	self, err := os.Executable()
	if err != nil {
		return
	}

	logFile, err := os.OpenFile(filepath.Join(dir, "start.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}

	proc := exec.Command(self, "start", "--cwd", dir)
	proc.Stdout = logFile
	proc.Stderr = logFile
	if err := proc.Start(); err != nil {
		return
	}
	_ = proc.Process.Release()

	deadlineSecs, _ := cmd.Flags().GetInt("start-deadline")
	deadline := time.Now().Add(time.Duration(deadlineSecs) * time.Second)
	for time.Now().Before(deadline) {
		if isReachable(url) {
			return
		}
		time.Sleep(300 * time.Millisecond)
	}
}

func isReachable(url string) bool {
	httpClient := &http.Client{Timeout: 1 * time.Second}
	resp, err := httpClient.Get(url + "/rag/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
