package metrics

import (
	"time"

	"github.com/cuemby/llamafarm/pkg/types"
)

// TaskLister is satisfied by a broker-backed result store: it must be
// able to enumerate the task records currently on disk so the
// collector can derive TasksTotal by state.
type TaskLister interface {
	ListTasks() ([]*types.TaskRecord, error)
}

// ServiceLister is satisfied by the orchestrator: it must be able to
// report the current status of every service it manages.
type ServiceLister interface {
	ListServices() []types.ServiceStatus
}

// Collector periodically samples the result store and orchestrator and
// publishes gauge metrics. It holds no state of its own beyond what it
// reads from its two collaborators on each tick.
type Collector struct {
	tasks    TaskLister
	services ServiceLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector. Either collaborator
// may be nil, in which case that half of collect() is skipped.
func NewCollector(tasks TaskLister, services ServiceLister) *Collector {
	return &Collector{
		tasks:    tasks,
		services: services,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a ticker.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTaskMetrics()
	c.collectServiceMetrics()
}

func (c *Collector) collectTaskMetrics() {
	if c.tasks == nil {
		return
	}
	records, err := c.tasks.ListTasks()
	if err != nil {
		return
	}

	counts := make(map[types.TaskState]int)
	for _, rec := range records {
		counts[rec.State]++
	}
	for _, state := range []types.TaskState{
		types.TaskStatePending,
		types.TaskStateStarted,
		types.TaskStateSuccess,
		types.TaskStateFailure,
		types.TaskStateRevoked,
	} {
		TasksTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectServiceMetrics() {
	if c.services == nil {
		return
	}
	statuses := c.services.ListServices()

	counts := make(map[types.ServiceState]int)
	for _, s := range statuses {
		counts[s.State]++
	}
	for _, state := range []types.ServiceState{
		types.ServiceStateStopped,
		types.ServiceStateStarting,
		types.ServiceStateRunning,
		types.ServiceStateStopping,
		types.ServiceStateFailed,
	} {
		ServicesTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
