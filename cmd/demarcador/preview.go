package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lewtec/demarcador/annotation"
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview <image-id> <out.png>",
	Short: "Render the boxes of an image into a PNG",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := openProject(ctx, projectDir(cmd))
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		var (
			img  domain.Image
			anns []domain.Annotation
			cats []domain.Category
		)
		_, err = p.App.Do(ctx, func(ws *annotation.Workspace) (any, error) {
			var err error
			if img, err = ws.Image(args[0]); err != nil {
				return nil, err
			}
			anns = ws.Store.ListByImage(img.ID)
			cats = ws.Registry.List()
			return nil, nil
		})
		if err != nil {
			return err
		}

		src, err := annotation.DecodeImage(filepath.Join(p.Dir, img.Filename))
		if err != nil {
			return fmt.Errorf("while decoding %s: %w", img.Filename, err)
		}
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := annotation.WritePreview(f, src, anns, cats); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s with %d boxes\n", args[1], len(anns))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
}
