package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lewtec/demarcador/annotation"
	"github.com/lewtec/demarcador/internal/codec"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import annotations from a native JSON, YOLO or COCO file",
	Long: `Import annotations into the project as one undoable step. Records that
fail validation are reported and skipped.

YOLO label files are matched to the image with the same file stem unless
--image names the image id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		imageID, _ := cmd.Flags().GetString("image")
		format, err := codec.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		p, err := openProject(ctx, projectDir(cmd))
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		out, err := p.App.Do(ctx, func(ws *annotation.Workspace) (any, error) {
			order, err := ws.ClassOrder()
			if err != nil {
				return nil, err
			}
			return ws.Importer.Import(ctx, codec.Request{
				Format:        format,
				Name:          filepath.Base(args[0]),
				Data:          data,
				ImageID:       imageID,
				CategoryOrder: order,
				User:          p.Config.User,
			})
		})
		if err != nil {
			return err
		}
		res := out.(codec.Result)

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, renderTable(
			[]string{"Format", "Imported", "Failed"},
			[][]string{{string(res.Format), strconv.Itoa(res.Imported), strconv.Itoa(res.Failed)}},
			[]columnAlignment{alignLeft, alignRight, alignRight},
		))
		if len(res.Errors) > 0 {
			rows := make([][]string, 0, len(res.Errors))
			for i := range res.Errors {
				e := &res.Errors[i]
				rows = append(rows, []string{strconv.Itoa(e.Record), e.Message()})
			}
			fmt.Fprintln(w, renderTable([]string{"Record", "Error"}, rows, []columnAlignment{alignRight, alignLeft}))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringP("format", "f", "auto", "Input format: auto, json, yolo or coco")
	importCmd.Flags().StringP("image", "i", "", "Image id a YOLO label file belongs to")
}
