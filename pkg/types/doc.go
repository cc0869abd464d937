/*
Package types defines the core data structures shared by every LlamaFarm
core package: the project manifest, service descriptors, task records,
document chunks, download records, and health reports.

# Core Types

Project:
  - ProjectManifest: namespace/name, runtime models, databases, strategies
  - DatabaseSpec: a named vector store plus embedding/retrieval config
  - ProcessingStrategy: directory filter + ordered parser/extractor chain

Orchestration:
  - ServiceDescriptor: one long-lived process, native or container mode
  - ServiceState: stopped -> starting -> running -> stopping -> stopped
  - ServiceStatus: the status() row rendered by the CLI

Task Broker / Result Store:
  - TaskRecord: the durable entity in the Result Store
  - TaskState: PENDING -> STARTED -> {SUCCESS, FAILURE}, or -> REVOKED
  - TaskKind: single or group

Ingestion:
  - DocumentChunk: chunk_id, document_hash, text, metadata, embedding
  - IngestResult: processed_files, stored_chunks, skipped, duration

Downloads:
  - DownloadRecord: ephemeral per-stream progress state
  - DownloadStreamState: start, progress, end, done, error

Health:
  - HealthReport / ComponentHealth: the /health response shape

# Design Patterns

Enums are typed strings with a const block, matched against explicitly
rather than validated through reflection:

	type TaskState string
	const (
	    TaskStatePending TaskState = "PENDING"
	    TaskStateStarted TaskState = "STARTED"
	)

Optional fields use pointers or omitempty tags; a TaskRecord's Result
and Traceback are mutually exclusive and both omitempty.
*/
package types
