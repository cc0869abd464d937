package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [service]",
	Short: "Stop one or all running services via a running `llamafarm start` process",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		u := fmt.Sprintf("http://%s/services/stop", metricsAddr)
		if len(args) == 1 {
			u += "?service=" + url.QueryEscape(args[0])
		}

		resp, err := http.Post(u, "application/json", nil)
		if err != nil {
			return &serviceError{fmt.Sprintf("reaching orchestrator control endpoint: %v", err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var errBody map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&errBody)
			return &serviceError{fmt.Sprintf("stop failed: %s: %s", resp.Status, errBody["error"])}
		}

		var statuses []types.ServiceStatus
		if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
			return &serviceError{fmt.Sprintf("decoding stop response: %v", err)}
		}

		for _, s := range statuses {
			fmt.Printf("  %-20s %-10s\n", s.ServiceID, s.State)
		}
		return nil
	},
}

func init() {
	stopCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address of the running `llamafarm start` control endpoint")
}
