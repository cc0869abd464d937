package main

import (
	"fmt"

	"github.com/cuemby/llamafarm/pkg/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter manifest.yaml for a new project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			dir = args[0]
		}

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = "my-project"
		}

		if err := config.WriteStarterManifest(dir, name); err != nil {
			return err
		}
		fmt.Printf("Initialized project %q at %s/manifest.yaml\n", name, dir)
		return nil
	},
}

func init() {
	initCmd.Flags().String("name", "", "project name (default: my-project)")
}
