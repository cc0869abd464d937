/*
Package orchestrator implements the Service Orchestrator (C4): it owns
the lifecycle and health of the three long-running processes (the API
server, the rag worker, and the Universal Runtime), in either native
or container mode, and streams model-download progress over SSE.

# Startup sequence

Start ensures the project directory layout exists, then for each
registered service in dependency order (worker, server, runtime)
spawns the process or container named by that service's
ServiceSpec.Mode (Start does not choose or resolve a mode itself),
captures a native process's stdio to a per-service log, and polls its
health endpoint with exponential
backoff up to a configurable deadline. A service that never reports
healthy is marked failed rather than running; Start does not roll back
services that came up before the failure.

# Shutdown sequence

Stop walks services in reverse dependency order, sends a cooperative
stop signal, waits up to a grace period, then force-kills. A service's
pid/container id is cleared only once the process is confirmed gone.

# Reconciliation

A background reconciler (reconciler.go) restarts a service whose health
has been unhealthy past a threshold — the orchestrator's last resort
for a worker wedged inside a non-cooperative handler, since task
revocation alone cannot force-kill it (spec.md §5).
*/
package orchestrator
