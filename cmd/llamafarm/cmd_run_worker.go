package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/broker/fsqueue"
	"github.com/cuemby/llamafarm/pkg/config"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/resultstore"
	"github.com/cuemby/llamafarm/pkg/runtimeclient"
	"github.com/cuemby/llamafarm/pkg/worker"
	"github.com/spf13/cobra"
)

// runWorkerCmd is the rag-worker process the orchestrator spawns
// natively; it is not meant to be invoked directly by users (spec.md
// §4.4 "API server depends on worker being dispatchable").
var runWorkerCmd = &cobra.Command{
	Use:    "__run-worker",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}
		manifest, err := config.LoadManifest(dir)
		if err != nil {
			return err
		}
		runtimeURL, _ := cmd.Flags().GetString("runtime-url")
		poolSize, _ := cmd.Flags().GetInt("pool-size")

		layout := projectdir.New(dir)
		store, err := resultstore.NewFileStore(layout.ResultStoreDir())
		if err != nil {
			return fmt.Errorf("opening result store: %w", err)
		}
		queue := fsqueue.New(layout.QueueDir())
		b := broker.New(store, queue, map[string]string{"rag.": "rag", "orchestration.": "server"})

		w, err := worker.New(worker.Config{
			Layout:   layout,
			Manifest: manifest,
			Broker:   b,
			Runtime:  runtimeclient.New(runtimeURL),
			PoolSize: poolSize,
		})
		if err != nil {
			return fmt.Errorf("starting worker: %w", err)
		}
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return w.Run(ctx)
	},
}

func init() {
	runWorkerCmd.Flags().String("runtime-url", "http://127.0.0.1:11434", "Universal Runtime base URL")
	runWorkerCmd.Flags().Int("pool-size", 4, "number of concurrent task handler goroutines")
}
