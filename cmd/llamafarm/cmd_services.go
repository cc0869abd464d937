package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Inspect services managed by a running `llamafarm start` process",
}

var servicesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of every managed service",
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		asJSON, _ := cmd.Flags().GetBool("json")

		resp, err := http.Get(fmt.Sprintf("http://%s/services/status", metricsAddr))
		if err != nil {
			return &serviceError{fmt.Sprintf("reaching orchestrator control endpoint: %v", err)}
		}
		defer resp.Body.Close()

		var statuses []types.ServiceStatus
		if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
			return &serviceError{fmt.Sprintf("decoding status response: %v", err)}
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(statuses)
		}

		fmt.Printf("%-20s %-10s %-6s %-10s %s\n", "SERVICE", "STATE", "PID", "HEALTH", "UPTIME")
		for _, s := range statuses {
			fmt.Printf("%-20s %-10s %-6d %-10s %s\n", s.ServiceID, s.State, s.PID, s.Health, s.Uptime.Round(time.Second))
		}
		return nil
	},
}

func init() {
	servicesCmd.AddCommand(servicesStatusCmd)
	servicesStatusCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address of the running `llamafarm start` control endpoint")
	servicesStatusCmd.Flags().Bool("json", false, "print status as JSON")
}
