package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/broker/fsqueue"
	"github.com/cuemby/llamafarm/pkg/config"
	"github.com/cuemby/llamafarm/pkg/events"
	"github.com/cuemby/llamafarm/pkg/metrics"
	"github.com/cuemby/llamafarm/pkg/orchestrator"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/resultstore"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the api-server and rag-worker services (the universal runtime is not started)",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}
		manifest, err := config.LoadManifest(dir)
		if err != nil {
			return err
		}

		mode := config.ResolveOrchestrationMode(cmd.Flag("mode").Value.String())
		deadlineSecs, _ := cmd.Flags().GetInt("start-deadline")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		apiAddr, _ := cmd.Flags().GetString("api-addr")
		runtimeURL, _ := cmd.Flags().GetString("runtime-url")

		self, err := os.Executable()
		if err != nil {
			return &serviceError{fmt.Sprintf("resolving own executable path: %v", err)}
		}

		layout := projectdir.New(dir)
		if err := layout.Ensure(databaseNames(manifest)); err != nil {
			return &serviceError{fmt.Sprintf("preparing project directory: %v", err)}
		}

		bus := events.NewBus()
		bus.Start()
		defer bus.Stop()

		orch := orchestrator.New(orchestrator.Config{
			Layout: layout,
			Bus:    bus,
			Services: map[string]orchestrator.ServiceSpec{
				orchestrator.ServiceWorker: {
					Mode:     types.ServiceModeNative,
					Command:  []string{self, "__run-worker", "--cwd", dir, "--runtime-url", runtimeURL},
					Deadline: time.Duration(deadlineSecs) * time.Second,
				},
				orchestrator.ServiceServer: {
					Mode:           types.ServiceModeNative,
					Command:        []string{self, "__run-server", "--cwd", dir, "--listen-addr", apiAddr, "--runtime-url", runtimeURL},
					HealthEndpoint: fmt.Sprintf("http://%s/rag/health", apiAddr),
					Deadline:       time.Duration(deadlineSecs) * time.Second,
				},
			},
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// The "server" queue's sole handler, orchestration.health, needs a
		// live *orchestrator.Orchestrator reference — it stays registered
		// here, in the process that owns the orchestrator, rather than in
		// the spawned api-server process (spec.md §4.2 routing table).
		store, err := resultstore.NewFileStore(layout.ResultStoreDir())
		if err != nil {
			return &serviceError{fmt.Sprintf("opening result store: %v", err)}
		}
		queue := fsqueue.New(layout.QueueDir())
		b := broker.New(store, queue, map[string]string{"rag.": "rag", "orchestration.": "server"})
		b.Register("orchestration.health", func(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
			return orch.HealthReport(), nil
		})
		go func() { _ = b.Serve(ctx, "server") }()

		if err := orch.Start(ctx); err != nil {
			return &serviceError{fmt.Sprintf("starting services: %v", err)}
		}

		metricsServer := &http.Server{Addr: metricsAddr, Handler: buildMetricsMux(orch)}
		errCh := make(chan error, 1)
		go func() { errCh <- metricsServer.ListenAndServe() }()

		fmt.Println("✓ Services started")
		for _, status := range orch.Status() {
			fmt.Printf("  %-20s %-10s health=%s\n", status.ServiceID, status.State, status.Health)
		}
		fmt.Printf("✓ Metrics and health endpoints: http://%s/metrics, http://%s/health\n", metricsAddr, metricsAddr)
		fmt.Printf("✓ api-server: http://%s (project: %s, mode: %s)\n", apiAddr, manifest.Name, mode)
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "\nmetrics server error: %v\n", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		if err := orch.Stop(); err != nil {
			return &serviceError{fmt.Sprintf("stopping services: %v", err)}
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func databaseNames(manifest *types.ProjectManifest) []string {
	names := make([]string, 0, len(manifest.Databases))
	for _, db := range manifest.Databases {
		names = append(names, db.Name)
	}
	return names
}

// buildMetricsMux serves /metrics and /health for monitoring, plus a
// small control surface the `stop`/`services status` subcommands use
// to reach the orchestrator living inside this foreground process.
func buildMetricsMux(orch *orchestrator.Orchestrator) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", orch.ServeHealth())
	mux.HandleFunc("/services/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(w, http.StatusOK, orch.Status())
	})
	mux.HandleFunc("/services/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		serviceIDs := r.URL.Query()["service"]
		if err := orch.Stop(serviceIDs...); err != nil {
			writeJSONBody(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSONBody(w, http.StatusOK, orch.Status())
	})
	return mux
}

func writeJSONBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	startCmd.Flags().String("mode", "", "orchestration mode: native, container, or auto (default: $LLAMAFARM_ORCHESTRATION_MODE, else native); shown in the startup banner only, services always run as native processes")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for /metrics and /health")
	startCmd.Flags().String("api-addr", "127.0.0.1:8088", "address the api-server listens on")
	startCmd.Flags().String("runtime-url", "http://127.0.0.1:11434", "Universal Runtime base URL")
}
