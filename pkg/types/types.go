package types

import "time"

// ProjectManifest is the immutable, user-authored description of a RAG
// project: its runtime models, databases, processing strategies, and
// dataset references. It is loaded once per run and never mutated.
type ProjectManifest struct {
	Namespace   string
	Name        string
	Runtimes    []RuntimeModel
	PromptSet   string
	Databases   []DatabaseSpec
	Strategies  []ProcessingStrategy
	Datasets    []string
}

// RuntimeModel names a model served by the Universal Runtime.
type RuntimeModel struct {
	ModelID       string
	Backend       string // "universal-runtime"
	Quantization  string
	ContextWindow int
}

// DatabaseSpec names a RAG database: a vector store plus the embedding
// and retrieval configuration it is queried with.
type DatabaseSpec struct {
	Name               string
	EmbeddingStrategy  string
	RetrievalStrategy  string
	VectorStoreType    string // "chroma", "pgvector", "memory"
}

// ProcessingStrategy bundles a directory filter with the ordered parser
// and extractor chain applied to matching files.
type ProcessingStrategy struct {
	Name      string
	Filter    DirectoryFilter
	Parsers   []ParserRef
	Extractors []ExtractorRef
}

// DirectoryFilter controls discovery when a task's source_path is a
// directory (§4.3 Discovery).
type DirectoryFilter struct {
	Recursive     bool
	IncludeGlobs  []string
	ExcludeGlobs  []string
	MaxFiles      int
	FollowSymlink bool
}

// ParserRef selects a parser by its declared file extensions. Parsers
// are tried in declaration order; the first extension match wins.
type ParserRef struct {
	Name           string
	FileExtensions []string
}

// ExtractorRef selects a metadata extractor. Extractors run in
// declaration order against every chunk a parser emits.
type ExtractorRef struct {
	Name string
}

// ServiceMode selects how the orchestrator runs a service.
type ServiceMode string

const (
	ServiceModeNative    ServiceMode = "native"
	ServiceModeContainer ServiceMode = "container"
)

// ServiceDescriptor is the orchestrator's internal record of one
// long-lived process (§3). It is created at startup, mutated on state
// transitions, and destroyed on shutdown.
type ServiceDescriptor struct {
	ServiceID      string
	Mode           ServiceMode
	Command        []string // native mode
	Image          string   // container mode
	Env            []string
	Ports          []int
	LogPath        string
	PID            int    // native mode
	ContainerID    string // container mode
	HealthEndpoint string
	State          ServiceState
	Degraded       bool
	CreatedAt      time.Time
	StartedAt      time.Time
}

// ServiceState is the lifecycle state of a Service Descriptor.
type ServiceState string

const (
	ServiceStateStopped  ServiceState = "stopped"
	ServiceStateStarting ServiceState = "starting"
	ServiceStateRunning  ServiceState = "running"
	ServiceStateStopping ServiceState = "stopping"
	ServiceStateFailed   ServiceState = "failed"
)

// TaskKind distinguishes a single task from a group of child tasks
// aggregated behind a parent task_id.
type TaskKind string

const (
	TaskKindSingle TaskKind = "single"
	TaskKindGroup  TaskKind = "group"
)

// TaskState is the Task Record state machine (§3). Transitions are
// monotonic along PENDING -> STARTED -> {SUCCESS, FAILURE} and
// PENDING|STARTED -> REVOKED; no other transition is permitted.
type TaskState string

const (
	TaskStatePending  TaskState = "PENDING"
	TaskStateStarted  TaskState = "STARTED"
	TaskStateSuccess  TaskState = "SUCCESS"
	TaskStateFailure  TaskState = "FAILURE"
	TaskStateRevoked  TaskState = "REVOKED"
)

// Terminal reports whether state has no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailure, TaskStateRevoked:
		return true
	default:
		return false
	}
}

// TaskRecord is the durable entity owned exclusively by the Result
// Store (§3, §4.1). Producers and consumers hold only task_id handles;
// this struct is the on-disk (and wire) representation.
type TaskRecord struct {
	TaskID    string
	Kind      TaskKind
	Name      string // for single: e.g. "rag.ingest_file"
	State     TaskState
	Result    interface{}       `json:",omitempty"`
	Traceback string            `json:",omitempty"`
	Children  []string          `json:",omitempty"`
	Metadata  map[string]string `json:",omitempty"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentChunk is internal to the Ingestion Pipeline (C3). chunk_id is
// derived as H(document_hash || chunk_index); within a single vector
// store collection it is unique.
type DocumentChunk struct {
	ChunkID      string
	DocumentID   string
	DocumentHash string
	SourcePath   string
	ChunkIndex   int
	Text         string
	Metadata     map[string]interface{}
	Embedding    []float32
}

// DownloadRecord tracks one in-flight model download (C4, ephemeral).
// It is created when a client opens the SSE endpoint and destroyed
// when the stream terminates.
type DownloadRecord struct {
	ModelID         string
	Quantization    string
	TotalBytes      int64
	DownloadedBytes int64
	StreamState     DownloadStreamState
}

// DownloadStreamState is the SSE event type for a model download.
type DownloadStreamState string

const (
	DownloadStateStart    DownloadStreamState = "start"
	DownloadStateProgress DownloadStreamState = "progress"
	DownloadStateEnd      DownloadStreamState = "end"
	DownloadStateDone     DownloadStreamState = "done"
	DownloadStateError    DownloadStreamState = "error"
)

// IngestResult is the result payload of a rag.ingest_file task (§4.3).
type IngestResult struct {
	ProcessedFiles  int              `json:"processed_files"`
	StoredChunks    int              `json:"stored_chunks"`
	Skipped         []SkippedFile    `json:"skipped"`
	DurationSeconds float64          `json:"duration_seconds"`
}

// SkippedFile records a file or chunk the pipeline skipped and why.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// HealthReport is the orchestration.health() result and the shape
// served by each service's /health endpoint (§4.4).
type HealthReport struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentStatus is the tri-state health of a service or dependency.
type ComponentStatus string

const (
	ComponentHealthy   ComponentStatus = "healthy"
	ComponentDegraded  ComponentStatus = "degraded"
	ComponentUnhealthy ComponentStatus = "unhealthy"
)

// ComponentHealth is one entry in a HealthReport's Components map.
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	LatencyMS int64           `json:"latency_ms"`
	Message   string          `json:"message,omitempty"`
}

// ServiceStatus is one row of the orchestrator's status() contract.
type ServiceStatus struct {
	ServiceID string
	State     ServiceState
	PID       int
	Port      int
	Health    ComponentStatus
	Uptime    time.Duration
}
