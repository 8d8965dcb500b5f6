package main

import (
	"fmt"
	"os"

	"github.com/lewtec/demarcador/annotation"
	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <inputs...> <output>",
	Short: "Ingest a folder of files to a folder of images.",
	Long:  `Ingest a folder of files that were extracted from somewhere and organize in a flat hierarchy of content-addressed PNG images.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(2)(cmd, args); err != nil {
			return err
		}
		inputs := args[0 : len(args)-1]
		output := args[len(args)-1]
		for i, input := range inputs {
			fileInfo, err := os.Stat(input)
			if err != nil {
				return fmt.Errorf("on %dth argument: %w", i+1, err)
			}
			if !fileInfo.IsDir() {
				return fmt.Errorf("on %dth argument: must be a directory", i+1)
			}
		}
		return os.MkdirAll(output, 0o777)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, _ := cmd.Flags().GetInt("jobs")
		inputs := args[0 : len(args)-1]
		output := args[len(args)-1]
		n, err := annotation.IngestTree(cmd.Context(), inputs, output, jobs)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Ingested %d images into %s\n", n, output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().IntP("jobs", "j", 1, "Amount of concurrent ingestors")
}
