package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"noindex-seo/internal/crawler"
	"noindex-seo/internal/ioformats"
)

type auditOptions struct {
	input       string
	output      string
	concurrency int
	timeout     time.Duration
}

func newAuditCmd(g *globalOptions) *cobra.Command {
	opts := &auditOptions{concurrency: 10, timeout: 20 * time.Second}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Fetch URLs and report the robots directives they emit",
		Long: `audit reads URLs from a CSV file with a 'url' column or from NDJSON, fetches
each one and reports the X-Robots-Tag header values, the robots meta
directives and their union. The report format follows the --output
extension (.csv, otherwise NDJSON); without --output it goes to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, l, err := loadConfig(g)
			if err != nil {
				return err
			}
			urls, rejected, err := ioformats.ReadURLs(opts.input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			for _, r := range rejected {
				l.Warnf("skipping %q: not an http(s) url", r)
			}

			client := crawler.NewHTTPClient(15*time.Second, 5*time.Second, 5*1024*1024)
			a := crawler.NewAuditor(client, opts.timeout)
			results := a.AuditAll(cmd.Context(), urls, opts.concurrency)

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			l.Infof("audited %d urls, %d failed", len(results), failed)

			if opts.output == "" {
				return ioformats.WriteReport(cmd.OutOrStdout(), ".ndjson", results)
			}
			f, err := os.Create(opts.output)
			if err != nil {
				return err
			}
			defer f.Close()
			return ioformats.WriteReport(f, filepath.Ext(opts.output), results)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "input file (csv with 'url' column or ndjson)")
	flags.StringVarP(&opts.output, "output", "o", "", "report file (.csv or .ndjson, default stdout)")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", opts.concurrency, "worker concurrency")
	flags.DurationVar(&opts.timeout, "timeout", opts.timeout, "per-url timeout")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
