// Package ingest implements the Ingestion Pipeline (C3).
//
// A Job walks a source path, parses each matching file into chunks,
// runs an ordered extractor chain over each chunk's metadata,
// deduplicates against a bbolt-backed chunk_id index, embeds
// undeduplicated chunks in batches, and upserts them into a vector
// store. Parsers, extractors, embedders, and vector stores are
// external collaborators the pipeline only talks to through the
// Parser, Extractor, Embedder, VectorStore, and DedupIndex interfaces
// in this package; concrete implementations for a specific embedding
// provider or vector database live elsewhere and are wired in when a
// Job is constructed.
//
// Run reports partial failures (an unreadable file, a parser error, a
// failed embedding batch) in the returned IngestResult's Skipped list
// rather than aborting the job; it only returns an error for
// unrecoverable failures such as the vector store rejecting a write or
// every file in the run being skipped.
package ingest
