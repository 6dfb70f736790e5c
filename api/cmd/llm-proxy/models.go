package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grader-proxy/api/internal/config"
	"grader-proxy/api/internal/dispatch"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model routing table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			disp := newDispatcher(cfg, zap.NewNop())
			renderRoutes(cmd.OutOrStdout(), disp.Routes())
			return nil
		},
	}
}

func renderRoutes(w io.Writer, routes []dispatch.RouteInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Provider", "Model", "Flags"})
	for _, r := range routes {
		t.AppendRow(table.Row{r.ID, r.Provider, r.Model, flags(r)})
	}
	t.AppendFooter(table.Row{"", "", "", len(routes)})
	t.Render()
}

func flags(r dispatch.RouteInfo) string {
	var f []string
	if r.Reasoning {
		f = append(f, "reasoning")
	}
	if r.ForcedJSON {
		f = append(f, "json")
	}
	if r.Prefill {
		f = append(f, "prefill")
	}
	if r.Multimodal {
		f = append(f, "images")
	}
	if r.PageOCR {
		f = append(f, "ocr")
	}
	return strings.Join(f, ",")
}
