package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/insightlab/analyst/config"
	"github.com/insightlab/analyst/internal/ingest"
	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/provider"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var urls []string
	var pdfs []string
	var cmd = &cobra.Command{
		Use:   "ingest",
		Short: "Ingest URLs and PDF files into the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(urls) == 0 && len(pdfs) == 0 {
				return fmt.Errorf("nothing to ingest: pass --url and/or --pdf")
			}
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()

			dsn, err := cfg.Databases.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return err
			}
			llm, err := provider.NewProvider(provider.OpenAI, cfg.Providers.OpenAI)
			if err != nil {
				return err
			}
			fetcher, err := ingest.NewFetcher(ingest.FetcherType(cfg.Ingest.Fetcher), cfg.Ingest.FetchTimeout, cfg.Ingest.MaxArticleChars)
			if err != nil {
				return err
			}
			svc := ingest.NewService(cfg.Ingest, st, llm, fetcher, nil)

			reports := svc.IngestURLs(ctx, urls)
			reports = append(reports, svc.IngestPDFs(ctx, pdfs)...)
			for _, rep := range reports {
				switch rep.Status {
				case "failed":
					fmt.Printf("failed    %s: %s\n", rep.Origin, rep.Error)
				case "skipped":
					fmt.Printf("skipped   %s (already ingested)\n", rep.Origin)
				default:
					fmt.Printf("ingested  %s (%d chunks)\n", rep.Origin, rep.Chunks)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "article URL to ingest (repeatable)")
	cmd.Flags().StringSliceVar(&pdfs, "pdf", nil, "PDF file to ingest (repeatable)")

	return cmd
}
