package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new annotation project",
	Long: `Initialize a project folder by creating:
- A sample configuration file (config.yaml)
- The SQLite database (annotations.db) with the images of the folder`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd.Context(), projectDir(cmd))
		if err != nil {
			return err
		}
		defer p.Close(cmd.Context())

		ws, err := p.App.Workspace(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Project ready: %d images, %d categories\n", len(ws.Images()), ws.Registry.Len())
		fmt.Fprintf(cmd.OutOrStdout(), "  Review %s, then run 'demarcador %s'\n", p.configFile(), p.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
