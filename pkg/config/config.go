// Package config loads the project manifest (YAML) and the three
// process configs — ServerConfig, WorkerConfig, OrchestratorConfig —
// from flags and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/types"
	"gopkg.in/yaml.v3"
)

// Environment variable overrides, mirroring spec.md §6.
const (
	EnvServerURL       = "LLAMAFARM_SERVER_URL"
	EnvSessionID       = "LLAMAFARM_SESSION_ID"
	EnvOrchestrationMode = "LLAMAFARM_ORCHESTRATION_MODE"
)

// manifestFile is the well-known filename at a project's root.
const manifestFile = "manifest.yaml"

// LoadManifest reads and parses a project's manifest.yaml.
func LoadManifest(projectDir string) (*types.ProjectManifest, error) {
	path := filepath.Join(projectDir, manifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.ConfigError(fmt.Sprintf("no manifest at %s", path), err)
		}
		return nil, apperr.ConfigError(fmt.Sprintf("reading manifest %s", path), err)
	}

	var m types.ProjectManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("parsing manifest %s", path), err)
	}
	if m.Name == "" {
		return nil, apperr.ConfigError(fmt.Sprintf("manifest %s is missing a name", path), nil)
	}
	for _, db := range m.Databases {
		if db.Name == "" {
			return nil, apperr.ConfigError(fmt.Sprintf("manifest %s: database entry missing a name", path), nil)
		}
	}
	return &m, nil
}

// WriteStarterManifest writes a minimal manifest.yaml, failing if one
// already exists (CLI `init` per spec.md §6).
func WriteStarterManifest(projectDir, name string) error {
	path := filepath.Join(projectDir, manifestFile)
	if _, err := os.Stat(path); err == nil {
		return apperr.ConfigError(fmt.Sprintf("manifest already exists at %s", path), nil)
	}

	m := types.ProjectManifest{
		Namespace: "default",
		Name:      name,
		Databases: []types.DatabaseSpec{
			{Name: "default", VectorStoreType: "memory"},
		},
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return apperr.ConfigError("encoding starter manifest", err)
	}
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return apperr.ConfigError(fmt.Sprintf("creating project dir %s", projectDir), err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ServerConfig configures the API server process.
type ServerConfig struct {
	ListenAddr string
	ProjectDir string
	QueueDir   string
	ResultDir  string
}

// WorkerConfig configures the RAG ingestion worker process.
type WorkerConfig struct {
	ProjectDir string
	QueueDir   string
	ResultDir  string
	PoolSize   int
}

// OrchestrationMode selects how the orchestrator runs services.
type OrchestrationMode string

const (
	ModeNative    OrchestrationMode = "native"
	ModeContainer OrchestrationMode = "container"
	ModeAuto      OrchestrationMode = "auto"
)

// OrchestratorConfig configures the Service Orchestrator.
type OrchestratorConfig struct {
	ProjectDir     string
	Mode           OrchestrationMode
	ServerDeadline int // seconds, default 30
	RuntimeDeadline int // seconds, default 45
}

// ResolveOrchestrationMode applies the §4.4 startup-sequence rule:
// explicit flag wins, then LLAMAFARM_ORCHESTRATION_MODE, then native.
func ResolveOrchestrationMode(flagValue string) OrchestrationMode {
	if flagValue != "" {
		return OrchestrationMode(flagValue)
	}
	if v := os.Getenv(EnvOrchestrationMode); v != "" {
		return OrchestrationMode(v)
	}
	return ModeNative
}

// ServerURL resolves the CLI's --server-url flag against its
// environment override.
func ServerURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvServerURL)
}

// SessionID resolves the chat session id used to reuse context across
// `llamafarm chat` invocations.
func SessionID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvSessionID)
}
