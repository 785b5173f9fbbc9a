package main

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/dunamismax/docflow/internal/export"
	"github.com/spf13/cobra"
)

// maxPages bounds --all so a gateway that keeps returning tokens cannot loop
// forever.
const maxPages = 500

func newJobsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage analysis jobs",
	}
	cmd.AddCommand(
		newJobsListCommand(a),
		newJobsGetCommand(a),
		newJobsCreateCommand(a),
		newJobsDeleteCommand(a),
		newJobsResultsCommand(a),
		newJobsDownloadResultCommand(a),
		newJobsExportCommand(a),
	)
	return cmd
}

func newJobsListCommand(a *app) *cobra.Command {
	var (
		nextToken string
		all       bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, token, err := a.listJobs(cmd, nextToken, all)
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(domain.JobCollection{Jobs: jobs, NextToken: token})
			}
			printJobTable(a, jobs)
			if token != "" {
				fmt.Fprintf(a.stderr, "next token: %s\n", token)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nextToken, "next-token", "", "continue from a previous page")
	cmd.Flags().BoolVar(&all, "all", false, "follow next tokens until the last page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// listJobs fetches one page, or every page with all set. Paging stops at the
// first non-live page since a fallback collection has no continuation.
func (a *app) listJobs(cmd *cobra.Command, token string, all bool) ([]domain.Job, string, error) {
	var jobs []domain.Job
	seen := map[string]bool{}
	for page := 0; page < maxPages; page++ {
		res, err := a.client.ListJobs(cmd.Context(), token)
		if err != nil {
			return nil, "", err
		}
		report(a, res)
		jobs = append(jobs, res.Value.Jobs...)
		token = res.Value.NextToken

		if !all || !res.Live() || token == "" || seen[token] {
			return jobs, token, nil
		}
		seen[token] = true
	}
	return jobs, token, nil
}

func printJobTable(a *app, jobs []domain.Job) {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tCREATED")
	for _, job := range jobs {
		created := ""
		if !job.CreatedAt.IsZero() {
			created = job.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n", job.ID, job.DisplayName(), job.Status, job.Progress, created)
	}
	_ = tw.Flush()
}

func newJobsGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report(a, res)
			return a.printJSON(res.Value)
		},
	}
}

func newJobsCreateCommand(a *app) *cobra.Command {
	var name, file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job from a local document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, err := readFileInput(file)
			if err != nil {
				return err
			}
			res, err := a.client.CreateJob(cmd.Context(), domain.CreateJobRequest{Name: name, Document: input})
			if err != nil {
				return err
			}
			report(a, res)
			return a.printJSON(res.Value)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&file, "file", "", "document to analyze")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newJobsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.DeleteJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report(a, res)
			fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
			return nil
		},
	}
}

func newJobsResultsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "results <job-id>",
		Short: "Show analysis results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.GetJobResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report(a, res)
			return a.printJSON(res.Value)
		},
	}
}

func newJobsDownloadResultCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download-result <job-id>",
		Short: "Download the result document of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.DownloadJobResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report(a, res)
			return a.writeOutput(out, res.Value.Data)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func newJobsExportCommand(a *app) *cobra.Command {
	var (
		out string
		all bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export jobs to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, _, err := a.listJobs(cmd, "", all)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := export.WriteJobsXLSX(&buf, jobs); err != nil {
				return err
			}
			if err := a.writeOutput(out, buf.Bytes()); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "exported %d jobs\n", len(jobs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "jobs.xlsx", "output workbook")
	cmd.Flags().BoolVar(&all, "all", true, "export every page")
	return cmd
}

func readFileInput(path string) (domain.FileInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.FileInput{}, fmt.Errorf("read %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return domain.FileInput{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
