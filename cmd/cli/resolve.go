package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"noindex-seo/internal/classifier"
	"noindex-seo/internal/middleware"
	"noindex-seo/internal/models"
	"noindex-seo/internal/robots"
)

type resolveOptions struct {
	path        string
	status      int
	context     string
	item        uint64
	headersSent bool
}

func newResolveCmd(g *globalOptions) *cobra.Command {
	opts := &resolveOptions{path: "/", status: http.StatusOK}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which directives a request path would get",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer e.Close()

			cl, err := classifier.New(e.cfg.Routes)
			if err != nil {
				return err
			}
			rb := middleware.NewRobots(e.settings, robots.NewEngine(nil), cl, middleware.WithLogger(e.log))

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, opts.path, nil)
			if err != nil {
				return err
			}
			hints := http.Header{}
			if opts.context != "" {
				hints.Set(classifier.HintContext, opts.context)
			}
			if opts.item > 0 {
				hints.Set(classifier.HintItem, strconv.FormatUint(opts.item, 10))
			}
			q := classifier.ApplyResponse(rb.Classify(req), opts.status, hints)

			d, err := rb.Decide(cmd.Context(), q, opts.headersSent)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Query    models.Query    `json:"query"`
				Decision models.Decision `json:"decision"`
			}{q, d})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.path, "path", opts.path, "request path, with query string")
	flags.IntVar(&opts.status, "status", opts.status, "response status")
	flags.StringVar(&opts.context, "context", "", "comma separated contexts, as the origin would hint them")
	flags.Uint64Var(&opts.item, "item", 0, "item id, as the origin would hint it")
	flags.BoolVar(&opts.headersSent, "headers-sent", false, "pretend headers were already sent")
	return cmd
}
