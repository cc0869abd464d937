// Package vectorstore provides the "memory" VectorStoreType named in a
// project manifest's DatabaseSpec (spec.md §3): an in-process,
// mutex-guarded store that satisfies ingest.VectorStore for the
// Ingestion Pipeline and additionally answers similarity search for
// rag.query / rag.stats.
//
// chroma and pgvector stores are named by the same VectorStoreType
// field but are external collaborators per spec.md §6 — nothing in
// this repo implements them. Store exists so the system has at least
// one concrete, runnable vector store end to end without a running
// chroma/pgvector instance.
package vectorstore
