package main

import (
	"fmt"
	"os"

	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes per spec.md §6: 0 success, 1 user error, 2 service error,
// 3 task failure.
const (
	exitOK           = 0
	exitUserError    = 1
	exitServiceError = 2
	exitTaskFailure  = 3
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "llamafarm",
	Short: "LlamaFarm - local RAG orchestration and task dispatch",
	Long: `LlamaFarm runs a local retrieval-augmented-generation stack as a
single binary: an ingestion worker that chunks and embeds documents, an
api-server that dispatches ingestion and query tasks, and a thin proxy
to a local model runtime, all coordinated by a filesystem-backed task
broker instead of a message queue.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"llamafarm version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("server-url", "", "api-server base URL (default http://127.0.0.1:8088, or $LLAMAFARM_SERVER_URL)")
	rootCmd.PersistentFlags().Bool("auto-start", true, "auto-start the orchestrator if the api-server is unreachable")
	rootCmd.PersistentFlags().String("cwd", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose debug logging")
	rootCmd.PersistentFlags().Int("start-deadline", 30, "seconds to wait for the api-server to become healthy")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(ragCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(runServerCmd)
	rootCmd.AddCommand(runWorkerCmd)
}

func initLogging() {
	debug, _ := rootCmd.PersistentFlags().GetBool("debug")
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: false})
}

// exitCode is implemented by errors that want to select a specific
// process exit code (spec.md §6's 1/2/3 taxonomy); a plain error exits 1.
type exitCode interface {
	ExitCode() int
}

func exitCodeFor(err error) int {
	if ec, ok := err.(exitCode); ok {
		return ec.ExitCode()
	}
	return exitUserError
}

type taskFailureError struct{ msg string }

func (e *taskFailureError) Error() string { return e.msg }
func (e *taskFailureError) ExitCode() int { return exitTaskFailure }

type serviceError struct{ msg string }

func (e *serviceError) Error() string { return e.msg }
func (e *serviceError) ExitCode() int { return exitServiceError }
