package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/llamafarm/pkg/api"
	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/broker/fsqueue"
	"github.com/cuemby/llamafarm/pkg/config"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/resultstore"
	"github.com/cuemby/llamafarm/pkg/runtimeclient"
	"github.com/spf13/cobra"
)

// runServerCmd is the api-server process the orchestrator spawns
// natively; not meant to be invoked directly by users.
var runServerCmd = &cobra.Command{
	Use:    "__run-server",
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
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		runtimeURL, _ := cmd.Flags().GetString("runtime-url")

		layout := projectdir.New(dir)
		store, err := resultstore.NewFileStore(layout.ResultStoreDir())
		if err != nil {
			return fmt.Errorf("opening result store: %w", err)
		}
		queue := fsqueue.New(layout.QueueDir())
		b := broker.New(store, queue, map[string]string{"rag.": "rag", "orchestration.": "server"})

		runtime := runtimeclient.New(runtimeURL)
		srv, err := api.New(api.Config{
			Layout:   layout,
			Manifest: manifest,
			Broker:   b,
			Fetcher:  runtime,
			Chat:     runtime,
		})
		if err != nil {
			return fmt.Errorf("building api-server: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return srv.ListenAndServe(ctx, listenAddr)
	},
}

func init() {
	runServerCmd.Flags().String("listen-addr", "127.0.0.1:8088", "address to listen on")
	runServerCmd.Flags().String("runtime-url", "http://127.0.0.1:11434", "Universal Runtime base URL")
}
