package main

import (
	"fmt"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/spf13/cobra"
)

func newUploadCommand(a *app) *cobra.Command {
	var (
		analyze bool
		name    string
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document through a presigned URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readFileInput(args[0])
			if err != nil {
				return err
			}

			desc, err := a.client.RequestUploadURL(cmd.Context(), input.Name, input.ContentType)
			if err != nil {
				return err
			}
			report(a, desc)

			uploaded, err := a.client.UploadFile(cmd.Context(), input, desc.Value)
			if err != nil {
				return err
			}
			report(a, uploaded)
			fmt.Fprintf(a.stdout, "key: %s\n", uploaded.Value)

			if !analyze {
				return nil
			}
			if name == "" {
				name = input.Name
			}
			job, err := a.client.StartAnalysis(cmd.Context(), uploaded.Value, name)
			if err != nil {
				return err
			}
			report(a, job)
			return a.printJSON(job.Value)
		},
	}
	cmd.Flags().BoolVar(&analyze, "analyze", false, "start analysis after uploading")
	cmd.Flags().StringVar(&name, "name", "", "job name for --analyze (default file name)")
	return cmd
}

func newDownloadCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <document|report> <folder> <key>",
		Short: "Download a stored document or report",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, err := domain.ParseResourceType(args[0])
			if err != nil {
				return err
			}

			link, err := a.client.RequestDownloadURL(cmd.Context(), resource, args[1], args[2])
			if err != nil {
				return err
			}
			report(a, link)

			blob, err := a.client.DownloadFile(cmd.Context(), link.Value)
			if err != nil {
				return err
			}
			report(a, blob)
			return a.writeOutput(out, blob.Value.Data)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}
