/*
Package config loads the project manifest and the per-process config
structs (ServerConfig, WorkerConfig, OrchestratorConfig) used by the
CLI, API server, worker, and orchestrator binaries.

Flags take priority over environment variables, which take priority
over defaults. See EnvServerURL, EnvSessionID, and
EnvOrchestrationMode for the environment overrides spec.md §6 names.
*/
package config
