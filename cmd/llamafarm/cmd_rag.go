package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/llamafarm/pkg/client"
	"github.com/spf13/cobra"
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Query and inspect RAG databases",
}

var ragQueryCmd = &cobra.Command{
	Use:   "query TEXT",
	Short: "Run a similarity search against a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		databaseName, _ := cmd.Flags().GetString("database")
		k, _ := cmd.Flags().GetInt("k")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := newClient(cmd).Query(ctx, databaseName, args[0], k)
		if err != nil {
			return &serviceError{err.Error()}
		}
		return printTaskResult(cmd, result)
	},
}

var ragStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a database's chunk/file counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		databaseName, _ := cmd.Flags().GetString("database")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := newClient(cmd).Stats(ctx, databaseName)
		if err != nil {
			return &serviceError{err.Error()}
		}
		return printTaskResult(cmd, result)
	},
}

var ragHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the aggregated service health banner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := newClient(cmd).Health(ctx)
		if err != nil {
			return &serviceError{err.Error()}
		}
		return printTaskResult(cmd, result)
	},
}

// printTaskResult renders a dispatched task's outcome, mapping a
// FAILURE terminal state to exit code 3 (spec.md §6).
func printTaskResult(cmd *cobra.Command, result client.TaskResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.State == "FAILURE" {
		return &taskFailureError{"task reported FAILURE, see traceback above"}
	}
	return nil
}

func init() {
	ragQueryCmd.Flags().String("database", "default", "RAG database to query")
	ragQueryCmd.Flags().Int("k", 5, "number of hits to return")
	ragStatsCmd.Flags().String("database", "default", "RAG database to inspect")

	ragCmd.AddCommand(ragQueryCmd, ragStatsCmd, ragHealthCmd)
}
