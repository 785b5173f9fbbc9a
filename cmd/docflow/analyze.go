package main

import (
	"fmt"
	"path/filepath"

	"github.com/dunamismax/docflow/internal/id"
	"github.com/dunamismax/docflow/internal/pipeline"
	"github.com/spf13/cobra"
)

// newAnalyzeCommand runs the worker's analysis pipeline on a local file
// without a gateway, writing the report under --out-dir.
func newAnalyzeCommand(a *app) *cobra.Command {
	var (
		outDir string
		jobID  string
		name   string
	)
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a local document and write its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			processor, err := pipeline.NewLocalProcessor(filepath.Dir(path), outDir)
			if err != nil {
				return err
			}
			if jobID == "" {
				jobID = id.New()
			}
			if name == "" {
				name = filepath.Base(path)
			}

			res, err := processor.Process(cmd.Context(), pipeline.Request{
				JobID:       jobID,
				JobName:     name,
				DocumentKey: filepath.Base(path),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "report: %s\n", filepath.Join(outDir, filepath.FromSlash(res.ReportKey)))
			return a.printJSON(res.Report)
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory the report is written under")
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id recorded in the report (default random)")
	cmd.Flags().StringVar(&name, "name", "", "job name recorded in the report (default file name)")
	return cmd
}
