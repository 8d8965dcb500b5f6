package main

import (
	"fmt"
	"strconv"

	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/repository"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [image-id]",
	Short: "Queries the annotation database",
	Long:  `List the stored boxes of the project, or only those of one image.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := openProject(ctx, projectDir(cmd))
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		repo := repository.NewAnnotationRepository(p.DB)
		var anns []domain.Annotation
		if len(args) == 1 {
			anns, err = repo.ListByImage(ctx, args[0])
		} else {
			anns, err = repo.ListPersisted(ctx)
		}
		if err != nil {
			return err
		}
		showIDs, _ := cmd.Flags().GetBool("show-ids")

		headers := []string{"Image", "Category", "X", "Y", "Width", "Height", "State", "By"}
		if showIDs {
			headers = append([]string{"ID"}, headers...)
		}
		rows := make([][]string, 0, len(anns))
		for _, a := range anns {
			row := []string{
				a.ImageID, a.CategoryID,
				formatCoord(a.BBox.X), formatCoord(a.BBox.Y), formatCoord(a.BBox.Width), formatCoord(a.BBox.Height),
				string(a.State), a.CreatedBy,
			}
			if showIDs {
				row = append([]string{a.ID}, row...)
			}
			rows = append(rows, row)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, nil))
		return nil
	},
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("show-ids", false, "Show annotation ids")
}
