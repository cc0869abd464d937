package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/llamafarm/pkg/health"
	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/metrics"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/rs/zerolog"
)

// unhealthyRestartThreshold is how many consecutive failed health
// checks a running service tolerates before the reconciler restarts
// it — the orchestrator's last resort for a handler wedged past any
// cooperative revocation point (spec.md §5).
const unhealthyRestartThreshold = 3

// Reconciler periodically restarts a service whose health has been
// unhealthy past unhealthyRestartThreshold. Grounded on
// pkg/reconciler/reconciler.go's loop shape (ticker + stopCh + logger),
// generalized from "reconcile cluster nodes and containers against
// pkg/manager" to "restart a wedged local service".
type Reconciler struct {
	orch   *Orchestrator
	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}
}

// NewReconciler creates a reconciler over orch.
func NewReconciler(orch *Orchestrator) *Reconciler {
	return &Reconciler{
		orch:   orch,
		logger: log.WithComponent("reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stopCh:
		// already stopped
	default:
		close(r.stopCh)
	}
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, id := range startOrder {
		e, ok := r.orch.entryFor(id)
		if !ok {
			continue
		}
		r.reconcileOne(ctx, e)
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, e *entry) {
	r.orch.mu.RLock()
	state := e.desc.State
	r.orch.mu.RUnlock()

	if state != types.ServiceStateRunning || e.checker == nil {
		return
	}

	result := e.checker.Check(ctx)
	e.health.Update(result, health.DefaultConfig())

	if e.health.ConsecutiveFailures < unhealthyRestartThreshold {
		return
	}

	r.logger.Warn().
		Str("service_id", e.desc.ServiceID).
		Int("consecutive_failures", e.health.ConsecutiveFailures).
		Msg("service unhealthy past threshold, restarting")

	r.orch.stopOne(e)
	if err := r.orch.startOne(ctx, e); err != nil {
		r.logger.Error().Err(err).Str("service_id", e.desc.ServiceID).Msg("restart failed")
	}
}
