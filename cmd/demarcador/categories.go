package main

import (
	"fmt"
	"strconv"

	"github.com/lewtec/demarcador/annotation"
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := openProject(ctx, projectDir(cmd))
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		var rows [][]string
		_, err = p.App.Do(ctx, func(ws *annotation.Workspace) (any, error) {
			for _, c := range ws.Registry.List() {
				rows = append(rows, categoryRow(c, ws.Store.CountByCategory(c.ID)))
			}
			return nil, nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"#", "ID", "Name", "Color", "Boxes"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
		))
		return nil
	},
}

func categoryRow(c domain.Category, boxes int) []string {
	return []string{strconv.Itoa(c.Order), c.ID, c.Name, c.Color, strconv.Itoa(boxes)}
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
