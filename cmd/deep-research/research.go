package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/engine"
	"github.com/pdiddy/deep-research/internal/knowledge"
	"github.com/pdiddy/deep-research/internal/provider"
	"github.com/pdiddy/deep-research/internal/session"
	"github.com/pdiddy/deep-research/internal/strategy"
	"github.com/pdiddy/deep-research/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research \"query\"",
	Short: "Run a research session end to end",
	Long: `Research runs the full pipeline for one query: generates research
questions, gathers evidence in parallel, deep-dives into critical areas,
cross-references the findings, and writes a synthesized report.

Progress streams to stderr; the result is written as a YAML file. The
Anthropic API key is read from .secrets/anthropic-api-key and the OpenAlex
contact email from .secrets/openalex-email unless flags override them.`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().String("depth", string(types.DepthStandard), "research depth: basic, standard, comprehensive, or expert")
	researchCmd.Flags().Int("max-sources", 0, "cap on total citations (0 = default)")
	researchCmd.Flags().Int("max-questions", 0, "cap on generated questions (0 = default)")
	researchCmd.Flags().Duration("timeout", 0, "session wall-time bound (0 = default 30m)")
	researchCmd.Flags().Bool("cross-validation", true, "scan insights for contradictions")
	researchCmd.Flags().StringSlice("preferred-domains", nil, "hosts whose citations get a score boost")
	researchCmd.Flags().Float64("min-relevance", 0, "evidence score floor (0 = default 0.35)")
	researchCmd.Flags().String("profile-domain", "", "user domain for strategy selection, e.g. software-engineering")
	researchCmd.Flags().String("anthropic-api-key", "", "Anthropic API key (default: .secrets/anthropic-api-key)")
	researchCmd.Flags().String("model", "claude-sonnet-4-5", "Anthropic model id")
	researchCmd.Flags().String("openalex-email", "", "contact email for the OpenAlex polite pool (default: .secrets/openalex-email)")
	researchCmd.Flags().String("db", "", "knowledge database path (default: ~/.config/deep-research/knowledge.db)")
	researchCmd.Flags().Bool("no-db", false, "disable the knowledge database")
	researchCmd.Flags().String("output", "research-result.yaml", "result file path")
	researchCmd.Flags().Bool("json", false, "also print the result as JSON on stdout")
	researchCmd.Flags().Bool("verbose", false, "enable debug logging")

	// Every flag resolves through viper, so deep-research.yaml and
	// DEEP_RESEARCH_* environment variables provide defaults and an
	// explicitly set flag still wins.
	for _, name := range []string{
		"depth", "max-sources", "max-questions", "timeout", "cross-validation",
		"preferred-domains", "min-relevance", "profile-domain",
		"anthropic-api-key", "model", "openalex-email", "db", "no-db",
		"output", "json", "verbose",
	} {
		cobra.CheckErr(viper.BindPFlag(flagKey(name), researchCmd.Flags().Lookup(name)))
	}

	rootCmd.AddCommand(researchCmd)
}

// flagKey maps a flag name to its config-file key: dashes become underscores
// so deep-research.yaml uses the same keys as the ResearchConfig yaml tags.
func flagKey(name string) string { return strings.ReplaceAll(name, "-", "_") }

func runResearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	apiKey := secretDefault("anthropic-api-key", viper.GetString("anthropic_api_key"))
	if apiKey == "" {
		return fmt.Errorf("no Anthropic API key: set --anthropic-api-key or .secrets/anthropic-api-key")
	}
	model := viper.GetString("model")
	email := secretDefault("openalex-email", viper.GetString("openalex_email"))

	log, err := buildLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	httpClient := &http.Client{Timeout: 60 * time.Second}
	completer := &provider.AnthropicCompleter{APIKey: apiKey, Model: model, Client: httpClient}
	searcher := &provider.OpenAlexSearcher{Client: httpClient, Email: email, UserAgent: "deep-research/" + version}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	cfg, profile, err := researchConfig()
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Completer: completer,
		Searcher:  searcher,
		Store:     store,
		Strategies: strategy.NewRegistry(
			&strategy.General{Completer: completer},
			&strategy.Technical{General: strategy.General{Completer: completer}},
		),
		Sessions: session.NewRegistry(cfg.ResultRetention),
		Logger:   log,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	id, err := eng.Start(query, profile, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "session %s started\n", id)

	result, err := streamProgress(cmd, eng, id)
	if err != nil {
		return err
	}

	output := viper.GetString("output")
	if err := session.WriteResultFile(output, *result); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "result written to %s\n", output)

	if viper.GetBool("json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return nil
}

// streamProgress polls the session, printing phase transitions and partial
// failure notes until the result is ready.
func streamProgress(cmd *cobra.Command, eng *engine.Engine, id string) (*types.Result, error) {
	var lastActivity string
	lastPct := -1
	printed := 0
	for {
		p, err := eng.GetProgress(id)
		if err != nil {
			return nil, err
		}
		if p.Activity != lastActivity || p.Percentage != lastPct {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", p.Percentage, p.Activity)
			lastActivity = p.Activity
			lastPct = p.Percentage
		}
		for _, note := range p.Errors[printed:] {
			fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", note)
		}
		printed = len(p.Errors)
		if p.Completed {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	return eng.GetResult(id)
}

func buildLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func openStore() (engine.KnowledgeStore, func(), error) {
	if viper.GetBool("no_db") {
		return knowledge.Nop{}, func() {}, nil
	}
	path := viper.GetString("db")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return knowledge.Nop{}, func() {}, nil
		}
		path = filepath.Join(home, ".config", "deep-research", "knowledge.db")
	}
	store, err := knowledge.NewStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening knowledge database: %w", err)
	}
	return store, func() { store.Close() }, nil
}

// researchConfig assembles the session config from viper, which resolves
// set flags first, then environment, config file, and flag defaults.
func researchConfig() (types.ResearchConfig, types.UserProfile, error) {
	cfg := types.ResearchConfig{
		Depth:             types.ResearchDepth(viper.GetString("depth")),
		MaxSources:        viper.GetInt("max_sources"),
		MaxQuestions:      viper.GetInt("max_questions"),
		MaxProcessingTime: viper.GetDuration("timeout"),
		CrossValidation:   viper.GetBool("cross_validation"),
		PreferredDomains:  viper.GetStringSlice("preferred_domains"),
		MinRelevanceScore: viper.GetFloat64("min_relevance"),
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return types.ResearchConfig{}, types.UserProfile{}, err
	}
	return cfg, types.UserProfile{Domain: viper.GetString("profile_domain")}, nil
}
