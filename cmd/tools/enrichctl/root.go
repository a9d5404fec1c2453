package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"query-enrichment/internal/bootstrap"
	"query-enrichment/internal/common/config"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/models"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "enrichctl",
		Short: "Run the query enrichment engine from the command line",
		Long: `enrichctl runs one-shot classify and enrich calls against the engine
configured by configs/config.yaml (or --config), and maintains the seed
source registry used by the crawled-content provider.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (default: configs/config.yaml lookup)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for engine diagnostics")

	root.AddCommand(newClassifyCmd(opts), newEnrichCmd(opts), newSourcesCmd(opts))
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFromFile(o.configPath)
	}
	return config.Load()
}

func (o *rootOptions) buildEngine() (*bootstrap.Engine, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cfg, bootstrap.Clients{}, logger.NewZapAdapter(logger.NewWithOptions(logger.Options{
		Level:  o.logLevel,
		Format: "console",
		Output: "stderr",
	})))
}

func newClassifyCmd(root *rootOptions) *cobra.Command {
	var history []string
	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Show the classifier verdict for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := root.buildEngine()
			if err != nil {
				return err
			}
			q, v := engine.Orchestrator.Classify(cmd.Context(), strings.Join(args, " "), models.EnrichContext{
				SessionHistoryTail: history,
			})
			sources := []string{}
			if v.NeedsExternalData {
				sources = engine.Orchestrator.Route(v.Domain)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"normalizedQuery": q.NormalizedText,
				"verdict":         v,
				"dataSources":     sources,
			})
		},
	}
	cmd.Flags().StringArrayVar(&history, "history", nil, "previous user turn, oldest first (repeatable)")
	return cmd
}

func newEnrichCmd(root *rootOptions) *cobra.Command {
	var (
		history  []string
		format   string
		locale   string
		place    string
		lat, lng float64
	)
	cmd := &cobra.Command{
		Use:   "enrich <query>",
		Short: "Run a full enrich call and print the payload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("--format must be text or json")
			}
			engine, err := root.buildEngine()
			if err != nil {
				return err
			}

			ec := models.EnrichContext{SessionHistoryTail: history, LocaleHint: locale}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				ec.ResolvedLocation = &models.Location{Name: place, Latitude: lat, Longitude: lng}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			payload := engine.Orchestrator.Enrich(ctx, strings.Join(args, " "), ec)
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), payload)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), engine.Renderer.Render(payload, engine.MaxTokens))
			return err
		},
	}
	cmd.Flags().StringArrayVar(&history, "history", nil, "previous user turn, oldest first (repeatable)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	cmd.Flags().StringVar(&locale, "locale", "", "locale hint such as en or ar")
	cmd.Flags().StringVar(&place, "place", "", "name of the caller's location")
	cmd.Flags().Float64Var(&lat, "lat", 0, "caller latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "caller longitude")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
