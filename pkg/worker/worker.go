package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/ingest"
	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/metrics"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/cuemby/llamafarm/pkg/vectorstore"
)

// QueueName is the fs-queue this worker serves (SPEC_FULL.md §4.2
// routing table: "rag.* -> rag").
const QueueName = "rag"

// IngestFileArgs is the wire argument record for "rag.ingest_file"
// (spec.md §6 task names).
type IngestFileArgs struct {
	ProjectDir   string `json:"project_dir"`
	DatabaseName string `json:"database_name"`
	SourcePath   string `json:"source_path"`
	StrategyName string `json:"strategy_name,omitempty"`
}

// QueryArgs is the wire argument record for "rag.query".
type QueryArgs struct {
	DatabaseName string `json:"database_name"`
	Query        string `json:"query"`
	K            int    `json:"k"`
}

// StatsArgs is the wire argument record for "rag.stats".
type StatsArgs struct {
	DatabaseName string `json:"database_name"`
}

// Config wires a Worker to its project, broker, and Universal Runtime.
// Runtime is accepted as the narrow ingest.Embedder interface rather
// than the concrete *runtimeclient.Client so tests can substitute a
// fake embedder without an HTTP dependency.
type Config struct {
	Layout   *projectdir.Layout
	Manifest *types.ProjectManifest
	Broker   *broker.Broker
	Runtime  ingest.Embedder
	PoolSize int
}

// Worker owns one open vectorstore.Store and dedup BoltIndex per
// database named in the manifest, and the handlers registered against
// Config.Broker for the lifetime of the process.
type Worker struct {
	cfg     Config
	stores  map[string]*vectorstore.Store
	dedups  map[string]*ingest.BoltIndex
	parsers map[string]ingest.Parser

	wg sync.WaitGroup
}

// New opens per-database state and registers rag.* handlers on
// cfg.Broker. Handlers are not invoked until Run starts serving the
// queue.
func New(cfg Config) (*Worker, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	w := &Worker{
		cfg:    cfg,
		stores: make(map[string]*vectorstore.Store, len(cfg.Manifest.Databases)),
		dedups: make(map[string]*ingest.BoltIndex, len(cfg.Manifest.Databases)),
		parsers: map[string]ingest.Parser{
			"plaintext": ingest.PlainTextParser{},
		},
	}

	for _, db := range cfg.Manifest.Databases {
		store, err := vectorstore.Open(cfg.Layout.VectorStoreDir(db.Name), db.Name)
		if err != nil {
			return nil, fmt.Errorf("opening vector store for database %q: %w", db.Name, err)
		}
		w.stores[db.Name] = store

		dedup, err := ingest.NewBoltIndex(cfg.Layout.DedupIndexDir(db.Name), db.Name)
		if err != nil {
			return nil, fmt.Errorf("opening dedup index for database %q: %w", db.Name, err)
		}
		w.dedups[db.Name] = dedup
	}

	cfg.Broker.Register("rag.ingest_file", w.handleIngestFile)
	cfg.Broker.Register("rag.query", w.handleQuery)
	cfg.Broker.Register("rag.stats", w.handleStats)
	return w, nil
}

// Run starts Config.PoolSize goroutines serving QueueName and blocks
// until ctx is done and every goroutine has returned.
func (w *Worker) Run(ctx context.Context) error {
	logger := log.WithComponent("worker")
	logger.Info().Int("pool_size", w.cfg.PoolSize).Msg("rag worker starting")

	for i := 0; i < w.cfg.PoolSize; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.cfg.Broker.Serve(ctx, QueueName); err != nil {
				logger.Error().Err(err).Msg("serve loop exited with error")
			}
		}()
	}
	w.wg.Wait()
	return nil
}

// Close releases every open dedup index. Vector stores need no
// explicit close: each Upsert already writes its file to disk via
// write-temp-then-rename.
func (w *Worker) Close() error {
	var firstErr error
	for name, d := range w.dedups {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing dedup index %q: %w", name, err)
		}
	}
	return firstErr
}

func (w *Worker) database(name string) (*vectorstore.Store, *ingest.BoltIndex, error) {
	store, ok := w.stores[name]
	if !ok {
		return nil, nil, apperr.ConfigError(fmt.Sprintf("unknown database %q", name), nil)
	}
	return store, w.dedups[name], nil
}

// strategyFor resolves a named ProcessingStrategy against the manifest,
// falling back to a built-in plaintext-only default so a project with
// no manifest strategies configured (e.g. a freshly `init`ed one) can
// still ingest .txt/.md sources end to end (seed scenario S1).
func (w *Worker) strategyFor(name string) types.ProcessingStrategy {
	for _, s := range w.cfg.Manifest.Strategies {
		if s.Name == name {
			return s
		}
	}
	return types.ProcessingStrategy{
		Name:   "default",
		Filter: types.DirectoryFilter{Recursive: true, MaxFiles: 10000},
		Parsers: []types.ParserRef{
			{Name: "plaintext", FileExtensions: []string{".txt", ".md"}},
		},
	}
}

func (w *Worker) resolveParsers(strategy types.ProcessingStrategy) []ingest.Parser {
	logger := log.WithComponent("worker")
	var parsers []ingest.Parser
	for _, ref := range strategy.Parsers {
		p, ok := w.parsers[ref.Name]
		if !ok {
			logger.Warn().Str("parser", ref.Name).Msg("no built-in parser registered for name, skipping")
			continue
		}
		parsers = append(parsers, p)
	}
	return parsers
}

func (w *Worker) handleIngestFile(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
	var args IngestFileArgs
	if err := json.Unmarshal(hctx.Args, &args); err != nil {
		return nil, apperr.ConfigError("decoding rag.ingest_file args", err)
	}

	store, dedup, err := w.database(args.DatabaseName)
	if err != nil {
		return nil, err
	}
	strategy := w.strategyFor(args.StrategyName)

	job := ingest.NewJob(args.ProjectDir, args.DatabaseName, args.SourcePath, strategy)
	job.Parsers = w.resolveParsers(strategy)
	job.Embedder = w.cfg.Runtime
	job.Store = store
	job.Dedup = dedup
	job.Revoked = hctx.Revoked

	timer := metrics.NewTimer()
	result, err := job.Run(ctx)
	timer.ObserveDuration(metrics.IngestJobDuration)

	metrics.IngestFilesProcessedTotal.Add(float64(result.ProcessedFiles))
	metrics.IngestChunksStoredTotal.Add(float64(result.StoredChunks))
	for _, skipped := range result.Skipped {
		metrics.IngestFilesSkippedTotal.WithLabelValues(classifySkipReason(skipped.Reason)).Inc()
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (w *Worker) handleQuery(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
	var args QueryArgs
	if err := json.Unmarshal(hctx.Args, &args); err != nil {
		return nil, apperr.ConfigError("decoding rag.query args", err)
	}
	if args.K <= 0 {
		args.K = 10
	}

	store, _, err := w.database(args.DatabaseName)
	if err != nil {
		return nil, err
	}

	vectors, err := w.cfg.Runtime.Embed(ctx, []string{args.Query})
	if err != nil {
		return nil, apperr.DependencyError("embedding query", err)
	}
	if len(vectors) != 1 {
		return nil, apperr.DependencyError(fmt.Sprintf("embedder returned %d vectors for 1 query", len(vectors)), nil)
	}

	hits, err := store.Search(ctx, vectors[0], args.K)
	if err != nil {
		return nil, apperr.DependencyError("searching vector store", err)
	}
	return hits, nil
}

func (w *Worker) handleStats(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
	var args StatsArgs
	if err := json.Unmarshal(hctx.Args, &args); err != nil {
		return nil, apperr.ConfigError("decoding rag.stats args", err)
	}
	store, _, err := w.database(args.DatabaseName)
	if err != nil {
		return nil, err
	}
	return store.Stats(), nil
}

// classifySkipReason buckets a free-text skip reason into the small
// cardinality metrics.IngestFilesSkippedTotal expects.
func classifySkipReason(reason string) string {
	switch {
	case strings.Contains(reason, "no parser matched"):
		return "no_parser"
	case strings.Contains(reason, "unreadable"):
		return "unreadable"
	case strings.Contains(reason, "parser error"):
		return "parse_error"
	case strings.Contains(reason, "embedding"):
		return "embedding_error"
	case strings.Contains(reason, "empty chunk"):
		return "empty_chunk"
	default:
		return "other"
	}
}
