// Package ingest implements the Ingestion Pipeline (C3): the
// worker-side state machine that streams documents through parsers,
// chunkers, extractors, an embedder, and a vector store, with
// deduplication, partial-failure tolerance, and progress reporting.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/google/uuid"
)

// Stage is the per-job state machine (spec.md §4.3): DISCOVERING ->
// PARSING -> EXTRACTING -> EMBEDDING -> STORING -> DONE, with an
// implicit FAILED reachable from any stage on unrecoverable error.
type Stage string

const (
	StageDiscovering Stage = "DISCOVERING"
	StageParsing     Stage = "PARSING"
	StageExtracting  Stage = "EXTRACTING"
	StageEmbedding   Stage = "EMBEDDING"
	StageStoring     Stage = "STORING"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// ProgressMessage is emitted at each stage change: DISCOVERING and
// DONE/FAILED once per job, PARSING, EXTRACTING and EMBEDDING once per
// file, STORING once per embed batch. No interval-based messages are
// emitted.
type ProgressMessage struct {
	Progress    int // 0..100
	Message     string
	CurrentFile string
}

// ProgressFunc receives progress updates; the pipeline's caller
// typically writes these into the Task Record's metadata.
type ProgressFunc func(ProgressMessage)

// Job drives one rag.ingest_file invocation end to end.
type Job struct {
	ProjectDir   string
	DatabaseName string
	SourcePath   string
	Strategy     types.ProcessingStrategy

	Parsers    []Parser
	Extractors []Extractor
	Embedder   Embedder
	Store      VectorStore
	Dedup      DedupIndex

	// EmbedBatchSize batches undeduplicated chunks before calling
	// Embedder.Embed; spec.md §4.3 step 5 default is 16-32.
	EmbedBatchSize int

	// Revoked is polled before each file, before each chunk's extractor
	// chain, and before each embed batch; when it returns true the job
	// stops at that point and returns with whatever was stored so far.
	Revoked  func() bool
	Progress ProgressFunc

	Stage Stage
}

// NewJob constructs a Job with its default embed batch size.
func NewJob(projectDir, databaseName, sourcePath string, strategy types.ProcessingStrategy) *Job {
	return &Job{
		ProjectDir:     projectDir,
		DatabaseName:   databaseName,
		SourcePath:     sourcePath,
		Strategy:       strategy,
		EmbedBatchSize: 16,
		Revoked:        func() bool { return false },
		Progress:       func(ProgressMessage) {},
		Stage:          StageDiscovering,
	}
}

// Run executes the pipeline and returns the job's result payload. Run
// never returns an error for partial failures (a skipped file, a
// failed chunk or embed batch) — those are reported in the result's
// Skipped list. An error is returned when the dedup check fails, the
// embedder returns a different number of vectors than chunks, the
// vector store rejects an Upsert (for example an embedding dimension
// mismatch against an existing collection), or every file was
// skipped/errored. Embed and Upsert are called once per batch; neither
// is retried.
func (j *Job) Run(ctx context.Context) (types.IngestResult, error) {
	start := time.Now()
	logger := log.WithComponent("pipeline")
	result := types.IngestResult{}

	j.setStage(StageDiscovering, 0, "discovering files")
	files, skipped := discover(j.SourcePath, j.Strategy.Filter)
	result.Skipped = append(result.Skipped, skipped...)

	if len(files) == 0 {
		j.setStage(StageDone, 100, "no files to process")
		result.DurationSeconds = time.Since(start).Seconds()
		return result, nil
	}

	var storedTotal int
	var anyStored bool
	var anyFileOK bool

	for i, path := range files {
		if j.Revoked() {
			logger.Info().Str("path", path).Msg("job revoked, stopping before next file")
			break
		}

		j.setStage(StageParsing, progressPct(i, len(files)), path)
		parser := selectParser(path, j.Parsers)
		if parser == nil {
			result.Skipped = append(result.Skipped, types.SkippedFile{Path: path, Reason: "no parser matched file extension"})
			continue
		}

		raw, err := readFile(path)
		if err != nil {
			result.Skipped = append(result.Skipped, types.SkippedFile{Path: path, Reason: fmt.Sprintf("unreadable: %v", err)})
			continue
		}
		documentHash := contentHash(raw)

		parsed, err := parser.Parse(raw)
		if err != nil {
			result.Skipped = append(result.Skipped, types.SkippedFile{Path: path, Reason: fmt.Sprintf("parser error: %v", err)})
			continue
		}
		anyFileOK = true
		result.ProcessedFiles++

		chunks := make([]types.DocumentChunk, 0, len(parsed))
		documentID := uuid.New().String()
		for idx, pc := range parsed {
			if pc.Text == "" {
				result.Skipped = append(result.Skipped, types.SkippedFile{Path: path, Reason: "empty chunk text after parsing"})
				continue
			}
			chunks = append(chunks, types.DocumentChunk{
				ChunkID:      chunkID(documentHash, idx),
				DocumentID:   documentID,
				DocumentHash: documentHash,
				SourcePath:   path,
				ChunkIndex:   idx,
				Text:         pc.Text,
				Metadata:     pc.Metadata,
			})
		}

		j.setStage(StageExtracting, progressPct(i, len(files)), path)
		for ci := range chunks {
			if j.Revoked() {
				break
			}
			chunks[ci].Metadata = j.runExtractors(chunks[ci].Text, chunks[ci].Metadata)
		}

		stored, storeErr := j.embedAndStore(ctx, chunks, &result)
		if storeErr != nil {
			j.setStage(StageFailed, progressPct(i, len(files)), storeErr.Error())
			result.DurationSeconds = time.Since(start).Seconds()
			return result, storeErr
		}
		if stored > 0 {
			anyStored = true
		}
		storedTotal += stored
	}

	result.StoredChunks = storedTotal
	result.DurationSeconds = time.Since(start).Seconds()

	if !anyFileOK && !anyStored {
		j.setStage(StageFailed, 100, "every file was skipped or errored")
		return result, fmt.Errorf("ingest job failed: every file was skipped or errored")
	}

	j.setStage(StageDone, 100, "ingestion complete")
	return result, nil
}

func (j *Job) runExtractors(text string, meta map[string]interface{}) map[string]interface{} {
	logger := log.WithComponent("pipeline")
	merged := map[string]interface{}{}
	for k, v := range meta {
		merged[k] = v
	}
	for _, ex := range j.Extractors {
		extra, err := ex.Extract(text, merged)
		if err != nil {
			logger.Warn().Err(err).Msg("extractor failed, skipping")
			continue
		}
		for k, v := range extra {
			merged[k] = v
		}
	}
	return merged
}

// embedAndStore runs deduplication, embedding, and storage for one
// file's chunks (spec.md §4.3 steps 4-6), batching undeduplicated
// chunks by EmbedBatchSize.
func (j *Job) embedAndStore(ctx context.Context, chunks []types.DocumentChunk, result *types.IngestResult) (int, error) {
	logger := log.WithComponent("pipeline")

	var pending []types.DocumentChunk
	for _, c := range chunks {
		exists, err := j.chunkExists(ctx, c.ChunkID)
		if err != nil {
			return 0, fmt.Errorf("dedup check for %s: %w", c.ChunkID, err)
		}
		if exists {
			continue
		}
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	stored := 0
	j.setStage(StageEmbedding, 0, "")
	for start := 0; start < len(pending); start += j.EmbedBatchSize {
		if j.Revoked() {
			break
		}
		end := start + j.EmbedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := j.Embedder.Embed(ctx, texts)
		if err != nil {
			logger.Warn().Err(err).Msg("embedding batch failed, skipping batch")
			for _, c := range batch {
				result.Skipped = append(result.Skipped, types.SkippedFile{Path: c.SourcePath, Reason: fmt.Sprintf("embedding failed: %v", err)})
			}
			continue
		}
		if len(vectors) != len(batch) {
			return stored, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		toStore := make([]StoredChunk, 0, len(batch))
		for i, c := range batch {
			if vectorInvalid(vectors[i]) {
				result.Skipped = append(result.Skipped, types.SkippedFile{Path: c.SourcePath, Reason: "embedding returned NaN or empty vector"})
				continue
			}
			c.Embedding = vectors[i]
			toStore = append(toStore, StoredChunk{
				ChunkID:  c.ChunkID,
				Vector:   c.Embedding,
				Metadata: FlattenMetadata(c.Metadata),
			})
		}

		j.setStage(StageStoring, 0, "")
		if len(toStore) > 0 {
			if err := j.Store.Upsert(ctx, toStore); err != nil {
				return stored, fmt.Errorf("vector store upsert: %w", err)
			}
			for _, sc := range toStore {
				if err := j.Dedup.Mark(sc.ChunkID); err != nil {
					logger.Warn().Err(err).Str("chunk_id", sc.ChunkID).Msg("failed to mark chunk in dedup index")
				}
			}
			stored += len(toStore)
		}
	}
	return stored, nil
}

func (j *Job) chunkExists(ctx context.Context, chunkID string) (bool, error) {
	exists, err := j.Dedup.Exists(chunkID)
	if err == nil && exists {
		return true, nil
	}
	// The dedup index is authoritative; the vector store's own
	// "exists?" check is a fallback only (spec.md §4.3 step 4).
	return j.Store.Exists(ctx, chunkID)
}

func (j *Job) setStage(stage Stage, progress int, message string) {
	j.Stage = stage
	j.Progress(ProgressMessage{Progress: progress, Message: message})
}

func progressPct(i, total int) int {
	if total == 0 {
		return 100
	}
	return (i * 100) / total
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func chunkID(documentHash string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", documentHash, chunkIndex)))
	return hex.EncodeToString(sum[:])
}

func vectorInvalid(v []float32) bool {
	if len(v) == 0 {
		return true
	}
	for _, f := range v {
		if f != f { // NaN
			return true
		}
	}
	return false
}
