package main

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strconv"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/lewtec/demarcador/internal/codec"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type labelError struct {
	file string
	codec.LineError
}

type validationReport struct {
	files  int
	lines  int
	errors []labelError
}

// validateDataset checks every label file under labels/train and labels/val
func validateDataset(fs billy.Filesystem) (validationReport, error) {
	var report validationReport
	for _, split := range []string{"train", "val"} {
		dir := path.Join("labels", split)
		if _, err := fs.Stat(dir); err != nil {
			log.Warnf("validate: directory not found: %s", dir)
			continue
		}
		files, err := util.Glob(fs, path.Join(dir, "*.txt"))
		if err != nil {
			return report, fmt.Errorf("while listing %s: %w", dir, err)
		}
		sort.Strings(files)
		for _, file := range files {
			data, err := util.ReadFile(fs, file)
			if err != nil {
				return report, fmt.Errorf("while reading %s: %w", file, err)
			}
			report.files++
			report.lines += bytes.Count(data, []byte("\n"))
			if len(data) > 0 && data[len(data)-1] != '\n' {
				report.lines++
			}
			errs, err := codec.ValidateYOLO(bytes.NewReader(data))
			if err != nil {
				return report, fmt.Errorf("while validating %s: %w", file, err)
			}
			for _, e := range errs {
				report.errors = append(report.errors, labelError{file: file, LineError: e})
			}
		}
	}
	return report, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate <dataset-dir>",
	Short: "Validate YOLO label files against the Ultralytics rules",
	Long: `Validate every .txt file in labels/train and labels/val of a YOLO
dataset: five values per line, a non-negative integer class and a box inside
the image in normalized coordinates.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := validateDataset(osfs.New(args[0]))
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Scanned %d files, %d lines\n", report.files, report.lines)
		if len(report.errors) == 0 {
			fmt.Fprintln(w, "✓ All label files are valid")
			return nil
		}
		rows := make([][]string, 0, len(report.errors))
		for _, e := range report.errors {
			rows = append(rows, []string{e.file, strconv.Itoa(e.Line), e.Content, e.Reason})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"File", "Line", "Content", "Error"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
		))
		return fmt.Errorf("%d invalid label lines", len(report.errors))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
