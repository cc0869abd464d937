package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/llamafarm/pkg/client"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [msg]",
	Short: "Stream a chat completion from the configured model",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		asCurl, _ := cmd.Flags().GetBool("curl")

		message := strings.Join(args, " ")
		if message == "" {
			var err error
			message, err = readLine("> ")
			if err != nil {
				return err
			}
		}
		messages := []client.ChatMessage{{Role: "user", Content: message}}

		if asCurl {
			printCurlEquivalent(cmd, model, messages)
			return nil
		}

		c := newClient(cmd)
		err := c.Chat(context.Background(), model, messages, func(token string) {
			fmt.Fprint(cmd.OutOrStdout(), token)
		})
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return &serviceError{err.Error()}
		}
		return nil
	},
}

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return scanner.Text(), nil
}

// printCurlEquivalent prints the sanitized curl command a `chat` call
// would issue, so users can script or audit the request without this
// CLI sending it (spec.md §6 `--curl` flag).
func printCurlEquivalent(cmd *cobra.Command, model string, messages []client.ChatMessage) {
	body := `{"model":"` + model + `","messages":[`
	for i, m := range messages {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf("{%q:%q,%q:%q}", "role", m.Role, "content", m.Content)
	}
	body += "]}"
	fmt.Fprintf(cmd.OutOrStdout(), "curl -N -X POST %s/chat -H 'Content-Type: application/json' -d '%s'\n", serverURL(cmd), body)
}

func init() {
	chatCmd.Flags().String("model", "", "model id to chat with (default: the project's configured runtime model)")
	chatCmd.Flags().Bool("curl", false, "print the sanitized equivalent curl request instead of sending it")
}
