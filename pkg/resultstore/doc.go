/*
Package resultstore implements the Result Store (C1 in the core design):
a durable, cross-process key -> Task Record map, readable by both the
API server (producer) and the worker (consumer).

FileStore is the reference transport. Each task_id is one JSON file
under a configured directory, written via write-temp-then-rename so a
crash mid-write never exposes a partial record. Group records store
only their Children list; Get derives the group's terminal state by
scanning children rather than persisting it independently.

NormalizeURL renders a store directory as the URL-like identifier used
where the path must round-trip through configuration, handling Windows
drive letters per the file:///<letter>:/... convention.
*/
package resultstore
