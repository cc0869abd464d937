package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Create, upload to, process, list, and delete datasets",
}

var datasetsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Register a new dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sourcePath, _ := cmd.Flags().GetString("source-path")
		databaseName, _ := cmd.Flags().GetString("database")

		d, err := newClient(cmd).CreateDataset(ctx, args[0], sourcePath, databaseName)
		if err != nil {
			return &serviceError{err.Error()}
		}
		fmt.Printf("✓ Dataset %q created (database: %s, source: %s)\n", d.Name, d.DatabaseName, d.SourcePath)
		return nil
	},
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		datasets, err := newClient(cmd).ListDatasets(ctx)
		if err != nil {
			return &serviceError{err.Error()}
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(datasets)
		}
		fmt.Printf("%-20s %-20s %s\n", "NAME", "DATABASE", "SOURCE")
		for _, d := range datasets {
			fmt.Printf("%-20s %-20s %s\n", d.Name, d.DatabaseName, d.SourcePath)
		}
		return nil
	},
}

var datasetsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove a dataset's registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := newClient(cmd).DeleteDataset(ctx, args[0]); err != nil {
			return &serviceError{err.Error()}
		}
		fmt.Printf("✓ Dataset %q deleted\n", args[0])
		return nil
	},
}

var datasetsUploadCmd = &cobra.Command{
	Use:   "upload NAME FILE",
	Short: "Upload a file into a dataset's source path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		if err := newClient(cmd).UploadDataset(ctx, args[0], filepath.Base(args[1]), f); err != nil {
			return &serviceError{err.Error()}
		}
		fmt.Printf("✓ Uploaded %s to dataset %q\n", filepath.Base(args[1]), args[0])
		return nil
	},
}

var datasetsProcessCmd = &cobra.Command{
	Use:   "process NAME",
	Short: "Dispatch ingestion for a dataset and poll until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(cmd)

		dispatchCtx, dispatchCancel := context.WithTimeout(context.Background(), 10*time.Second)
		taskID, err := c.ProcessDataset(dispatchCtx, args[0])
		dispatchCancel()
		if err != nil {
			return &serviceError{err.Error()}
		}
		fmt.Printf("Dispatched task %s, waiting for completion...\n", taskID)

		pollCtx, pollCancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer pollCancel()
		result, err := c.AwaitTask(pollCtx, taskID, 500*time.Millisecond)
		if err != nil {
			return &serviceError{err.Error()}
		}

		switch result.State {
		case "SUCCESS":
			fmt.Printf("✓ Ingestion complete: %v\n", result.Result)
			return nil
		case "FAILURE":
			return &taskFailureError{fmt.Sprintf("ingestion failed: %s", result.Traceback)}
		default:
			return &taskFailureError{fmt.Sprintf("ingestion ended in unexpected state %s", result.State)}
		}
	},
}

func init() {
	datasetsCreateCmd.Flags().String("source-path", "", "directory the dataset's files live in (default: <project>/datasets/<name>)")
	datasetsCreateCmd.Flags().String("database", "default", "RAG database this dataset feeds")
	datasetsListCmd.Flags().Bool("json", false, "print datasets as JSON")

	datasetsCmd.AddCommand(datasetsCreateCmd, datasetsListCmd, datasetsDeleteCmd, datasetsUploadCmd, datasetsProcessCmd)
}
