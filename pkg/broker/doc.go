/*
Package broker implements the Task Broker (C2): signatures name a task
without importing its handler; Dispatch/DispatchGroup enqueue work and
write PENDING Task Records; Poll/Revoke read and cancel by task_id;
Register/Serve run on the consumer side.

Routing is a static prefix table resolved at Dispatch time ("rag." ->
"rag", "orchestration." -> "server"); an unmatched prefix is a
ConfigError, never a silent drop.

AwaitCompletionParallel and AwaitCompletionCooperative are distinct
wrappers deliberately: the first blocks its calling goroutine freely
(used by the API server's thread-pool-style handlers), the second
yields through a context so a single-threaded event loop keeps making
progress on other work while waiting. Never use one where the other
belongs (spec.md §9).
*/
package broker
