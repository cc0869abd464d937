// Package health provides health check mechanisms used by the
// orchestrator's WaitHealthy and by each service's own /health
// endpoint (§4.4).
//
// Two checker types are provided:
//
//	HTTPChecker  GET (or a configured method) against a URL, healthy on a status in 200-399 by default
//	ExecChecker  run a command, healthy on exit code 0 (e.g. "kill -0 <pid>")
//
// Both implement the Checker interface and return a Result.
// Status accumulates consecutive-failure/success counts across repeated
// checks and flips Healthy only after Config.Retries consecutive
// failures, so a single slow response does not flap a service straight
// to unhealthy.
//
// # Usage
//
//	checker := health.NewHTTPChecker("http://127.0.0.1:8080/health")
//	status := health.NewStatus()
//	cfg := health.DefaultConfig()
//
//	for {
//		result := checker.Check(ctx)
//		status.Update(result, cfg)
//		if !status.Healthy {
//			// restart or mark the service degraded
//		}
//		time.Sleep(cfg.Interval)
//	}
//
// StartPeriod gives a slow-starting service (loading a model, warming
// a cache) a grace window before failed checks count against it.
package health
