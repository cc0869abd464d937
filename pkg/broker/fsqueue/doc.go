/*
Package fsqueue is the reference broker.Queue transport: one file per
enqueued message under <root>/<queue_name>/, claimed by renaming into
<root>/<queue_name>/.claimed/. A per-queue fsnotify watcher wakes
Claim on new files; a short poll fallback covers messages enqueued
before the watcher started or events coalesced by the OS.

A claimed message is not redelivered automatically: a consumer that
crashes after claiming but before calling the commit function leaves
the file parked in .claimed/ forever. Operators
recover a stuck queue by moving files back out of .claimed/; handlers
must already tolerate duplicate delivery per spec.md §4.2, so this is
a availability trade-off, not a correctness one.
*/
package fsqueue
