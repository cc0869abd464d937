package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/ingest"
)

// record is one stored chunk: its embedding and flattened metadata.
type record struct {
	ChunkID  string            `json:"chunk_id"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

// Hit is one ranked result of a Search call.
type Hit struct {
	ChunkID  string            `json:"chunk_id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Stats summarizes a Store's contents for rag.stats.
type Stats struct {
	ChunkCount int `json:"chunk_count"`
	Dimension  int `json:"dimension"`
}

// Store is the in-process "memory" vector store named in a database's
// VectorStoreType (spec.md §3). It satisfies ingest.VectorStore
// (Upsert/Exists) and additionally answers Search for the rag.query
// API, persisting to a single JSON file via the same write-temp-then-
// rename discipline resultstore.FileStore uses for Task Records.
type Store struct {
	path string

	mu      sync.RWMutex
	records map[string]record
	dim     int
}

// Open loads (or creates) a Store rooted at dir, one file per database
// (<databaseName>.json).
func Open(dir, databaseName string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.TransportError(fmt.Sprintf("creating vector store dir %s", dir), err)
	}
	s := &Store{
		path:    filepath.Join(dir, databaseName+".json"),
		records: make(map[string]record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.TransportError(fmt.Sprintf("reading vector store %s", s.path), err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return apperr.TransportError(fmt.Sprintf("parsing vector store %s", s.path), err)
	}
	for _, r := range records {
		s.records[r.ChunkID] = r
		if len(r.Vector) > s.dim {
			s.dim = len(r.Vector)
		}
	}
	return nil
}

// persist writes every record to path via a temp file in the same
// directory followed by os.Rename, mirroring resultstore's atomicity
// discipline. Caller must hold s.mu.
func (s *Store) persist() error {
	all := make([]record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	data, err := json.Marshal(all)
	if err != nil {
		return apperr.TransportError("encoding vector store", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tmp-vectorstore-*")
	if err != nil {
		return apperr.TransportError("creating temp vector store file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.TransportError("writing vector store", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.TransportError("closing temp vector store file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperr.TransportError("renaming vector store into place", err)
	}
	return nil
}

// Upsert implements ingest.VectorStore: stores each chunk's vector and
// flattened metadata, keyed by chunk_id, and persists to disk.
func (s *Store) Upsert(ctx context.Context, chunks []ingest.StoredChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if s.dim != 0 && len(c.Vector) != s.dim {
			return apperr.DependencyError(
				fmt.Sprintf("embedding dimension %d does not match existing collection dimension %d", len(c.Vector), s.dim), nil)
		}
		if s.dim == 0 {
			s.dim = len(c.Vector)
		}
		s.records[c.ChunkID] = record{ChunkID: c.ChunkID, Vector: c.Vector, Metadata: c.Metadata}
	}
	return s.persist()
}

// Exists implements ingest.VectorStore's dedup fallback check.
func (s *Store) Exists(ctx context.Context, chunkID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[chunkID]
	return ok, nil
}

// Search returns the k nearest records to query by cosine similarity,
// highest score first.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]Hit, 0, len(s.records))
	for _, r := range s.records {
		hits = append(hits, Hit{ChunkID: r.ChunkID, Score: cosineSimilarity(query, r.Vector), Metadata: r.Metadata})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Stats reports the database's current size for rag.stats.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{ChunkCount: len(s.records), Dimension: s.dim}
}

func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
