package main

import (
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/lewtec/demarcador/annotation"
	"github.com/lewtec/demarcador/internal/codec"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export annotations as native JSON, YOLO or COCO",
	Long: `Export the annotations of the project into a directory.

json writes annotations.json, coco writes instances.json and yolo writes one
labels/<image>.txt per image plus a data.yaml naming the classes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		outDir, _ := cmd.Flags().GetString("out")
		images, _ := cmd.Flags().GetStringSlice("images")
		format, err := codec.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		if format == codec.FormatAuto {
			return fmt.Errorf("export needs an explicit --format")
		}

		ctx := cmd.Context()
		p, err := openProject(ctx, projectDir(cmd))
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		var classes []string
		out, err := p.App.Do(ctx, func(ws *annotation.Workspace) (any, error) {
			order, err := ws.ClassOrder()
			if err != nil {
				return nil, err
			}
			classes = ws.ClassNames(order)
			return ws.Exporter.Export(ctx, codec.ExportRequest{Format: format, ImageIDs: images, CategoryOrder: order})
		})
		if err != nil {
			return err
		}
		bundle := out.(codec.Bundle)

		fs := osfs.New(outDir)
		if format == codec.FormatYOLO {
			err = codec.WriteYOLODataset(fs, ".", bundle, classes)
		} else {
			err = codec.WriteBundle(fs, ".", bundle)
		}
		if err != nil {
			return err
		}
		names := make([]string, len(bundle.Files))
		for i, f := range bundle.Files {
			names[i] = f.Name
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d %s file(s) to %s: %s\n", len(names), format, outDir, strings.Join(names, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("format", "f", "json", "Output format: json, yolo or coco")
	exportCmd.Flags().StringP("out", "o", "export", "Directory to write the export into")
	exportCmd.Flags().StringSlice("images", nil, "Only export these image ids")
}
