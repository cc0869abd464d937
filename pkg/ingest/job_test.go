package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParser struct {
	exts      []string
	chunks    []ParsedChunk
	err       error
	errOnText string
}

func (f *fakeParser) Extensions() []string { return f.exts }
func (f *fakeParser) Parse(data []byte) ([]ParsedChunk, error) {
	if f.errOnText != "" && string(data) == f.errOnText {
		return nil, errors.New("malformed")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeExtractor struct {
	add map[string]interface{}
	err error
}

func (f *fakeExtractor) Extract(text string, meta map[string]interface{}) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.add, nil
}

type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeStore struct {
	upserted []StoredChunk
	existing map[string]bool
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: map[string]bool{}}
}

func (f *fakeStore) Upsert(ctx context.Context, chunks []StoredChunk) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, chunks...)
	for _, c := range chunks {
		f.existing[c.ChunkID] = true
	}
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, chunkID string) (bool, error) {
	return f.existing[chunkID], nil
}

type fakeDedup struct {
	marked map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{marked: map[string]bool{}}
}

func (d *fakeDedup) Exists(chunkID string) (bool, error) { return d.marked[chunkID], nil }
func (d *fakeDedup) Mark(chunkID string) error {
	d.marked[chunkID] = true
	return nil
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_SingleFileFourChunks(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.md", "# hello")

	parser := &fakeParser{exts: []string{".md"}, chunks: []ParsedChunk{
		{Text: "a", Metadata: map[string]interface{}{"n": 1}},
		{Text: "b", Metadata: map[string]interface{}{"n": 2}},
		{Text: "c", Metadata: map[string]interface{}{"n": 3}},
		{Text: "d", Metadata: map[string]interface{}{"n": 4}},
	}}

	j := NewJob(dir, "default", path, types.ProcessingStrategy{})
	j.Parsers = []Parser{parser}
	j.Embedder = &fakeEmbedder{dim: 3}
	j.Store = newFakeStore()
	j.Dedup = newFakeDedup()

	result, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedFiles)
	assert.Equal(t, 4, result.StoredChunks)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, StageDone, j.Stage)
}

func TestRun_DuplicateIngestStoresNothingNew(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.md", "# hello")

	parser := &fakeParser{exts: []string{".md"}, chunks: []ParsedChunk{
		{Text: "a"},
	}}

	dedup := newFakeDedup()
	store := newFakeStore()

	j := NewJob(dir, "default", path, types.ProcessingStrategy{})
	j.Parsers = []Parser{parser}
	j.Embedder = &fakeEmbedder{dim: 3}
	j.Store = store
	j.Dedup = dedup

	first, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.StoredChunks)

	second, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.StoredChunks)
}

func TestRun_EmptyDirectorySucceedsWithZeroChunks(t *testing.T) {
	dir := t.TempDir()

	j := NewJob(dir, "default", dir, types.ProcessingStrategy{})
	j.Embedder = &fakeEmbedder{dim: 3}
	j.Store = newFakeStore()
	j.Dedup = newFakeDedup()

	result, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedFiles)
	assert.Equal(t, 0, result.StoredChunks)
	assert.Equal(t, StageDone, j.Stage)
}

func TestRun_NoParserMatchSkipsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.bin", "binary")

	j := NewJob(dir, "default", path, types.ProcessingStrategy{})
	j.Parsers = []Parser{&fakeParser{exts: []string{".md"}}}
	j.Embedder = &fakeEmbedder{dim: 3}
	j.Store = newFakeStore()
	j.Dedup = newFakeDedup()

	result, err := j.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, result.ProcessedFiles)
	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "no parser matched")
}

func TestRun_ParserErrorIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "good.md", "ok")
	writeTempFile(t, dir, "bad.md", "bad")

	parser := &fakeParser{exts: []string{".md"}, chunks: []ParsedChunk{{Text: "ok"}}, errOnText: "bad"}

	j := NewJob(dir, "default", dir, types.ProcessingStrategy{})
	j.Parsers = []Parser{parser}
	j.Embedder = &fakeEmbedder{dim: 3}
	j.Store = newFakeStore()
	j.Dedup = newFakeDedup()

	result, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedFiles)
	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "parser error")
}

func TestRun_RevokedStopsBeforeNextFile(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.md", "a")
	writeTempFile(t, dir, "b.md", "b")

	calls := 0
	j := NewJob(dir, "default", dir, types.ProcessingStrategy{})
	j.Parsers = []Parser{&fakeParser{exts: []string{".md"}, chunks: []ParsedChunk{{Text: "x"}}}}
	j.Embedder = &fakeEmbedder{dim: 3}
	j.Store = newFakeStore()
	j.Dedup = newFakeDedup()
	j.Revoked = func() bool {
		calls++
		return calls > 1
	}

	result, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedFiles)
}

func TestSelectParser_FirstMatchWins(t *testing.T) {
	md := &fakeParser{exts: []string{".md"}}
	txt := &fakeParser{exts: []string{".md", ".txt"}}

	got := selectParser("doc.md", []Parser{md, txt})
	assert.Same(t, Parser(md), got)
}

func TestFlattenMetadata(t *testing.T) {
	in := map[string]interface{}{
		"title": "hello",
		"tags":  []string{"a", "b"},
		"nested": map[string]interface{}{
			"x": 1,
		},
		"dropped": nil,
	}
	out := FlattenMetadata(in)
	assert.Equal(t, "hello", out["title"])
	assert.Equal(t, "a|b", out["tags"])
	assert.JSONEq(t, `{"x":1}`, out["nested"])
	_, hasDropped := out["dropped"]
	assert.False(t, hasDropped)
}
