// Package worker is the rag-worker process: it registers the
// "rag.ingest_file", "rag.query", and "rag.stats" task handlers against
// a Broker and runs a small pool of goroutines calling Broker.Serve,
// grounded on the teacher's pkg/worker container-executor loop shape
// (stopCh-gated goroutines, one per pool slot) generalized from "poll
// assigned containers" to "pop claimed tasks off the fs-queue and run
// handlers synchronously, one per pool goroutine" (spec.md §5).
package worker
