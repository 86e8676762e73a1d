package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/worktype-resolver/internal/observability"
	"github.com/jonathan/worktype-resolver/internal/resolution"
	"github.com/jonathan/worktype-resolver/internal/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve assessment fragments to catalog work types",
	Long: `Resolves assessment fragments to catalog work types. Free text given with --text
or --file is split into fragments first; --fragment passes fragments verbatim.
Fragments the catalog cannot match are sent to the draft generator in one batch.`,
	RunE: runResolve,
}

var (
	resolveText        string
	resolveFile        string
	resolveFragments   []string
	resolveHard        float64
	resolveSoft        float64
	resolveK           int
	resolveOutputFile  string
	resolveCatalogFile string
	resolveNoDraft     bool
	resolveSuggestions int
)

func init() {
	resolveCmd.Flags().StringVarP(&resolveText, "text", "t", "", "Assessment notes to split into fragments")
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "Path to a text file of assessment notes")
	resolveCmd.Flags().StringArrayVar(&resolveFragments, "fragment", nil, "A fragment to resolve verbatim (repeatable)")
	resolveCmd.Flags().Float64Var(&resolveHard, "hard", 0, "Hard threshold (default from config, 0.85)")
	resolveCmd.Flags().Float64Var(&resolveSoft, "soft", 0, "Soft threshold (default from config, 0.60)")
	resolveCmd.Flags().IntVarP(&resolveK, "top-k", "k", 0, "Candidates considered per fragment (default from config, 5)")
	resolveCmd.Flags().StringVarP(&resolveOutputFile, "out", "o", "", "Path to output JSON file (default stdout)")
	resolveCmd.Flags().StringVar(&resolveCatalogFile, "catalog", "", "Path to a JSON catalog used instead of the database")
	resolveCmd.Flags().BoolVar(&resolveNoDraft, "no-draft", false, "Leave unmatched fragments unresolved")
	resolveCmd.Flags().IntVar(&resolveSuggestions, "suggestions", 10, "Number of merged catalog suggestions to include")

	resolveCmd.MarkFlagsMutuallyExclusive("text", "file", "fragment")

	rootCmd.AddCommand(resolveCmd)
}

// ResolveOutput is the JSON document written by the resolve command.
type ResolveOutput struct {
	Items       []types.ResolvedItem `json:"items"`
	Suggestions []types.Candidate    `json:"suggestions,omitempty"`
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("hard") {
		cfg.HardThreshold = resolveHard
	}
	if cmd.Flags().Changed("soft") {
		cfg.SoftThreshold = resolveSoft
	}
	if cmd.Flags().Changed("top-k") {
		cfg.K = resolveK
	}

	fragments, err := collectFragments(resolveText, resolveFile, resolveFragments)
	if err != nil {
		return err
	}

	d := &deps{cfg: cfg}
	defer d.Close()
	if err := d.openCatalog(ctx, resolveCatalogFile); err != nil {
		return err
	}
	if err := d.openEmbedder(ctx); err != nil {
		return err
	}
	if err := d.openMetrics(ctx); err != nil {
		return err
	}

	index, err := d.index()
	if err != nil {
		return fmt.Errorf("failed to build similarity index: %w", err)
	}

	var drafter resolution.Drafter
	if !resolveNoDraft {
		if err := d.openCache(ctx); err != nil {
			return err
		}
		if err := d.openClient(ctx); err != nil {
			return err
		}
		gen, err := d.generator()
		if err != nil {
			return fmt.Errorf("failed to create draft generator: %w", err)
		}
		if gen != nil {
			drafter = gen
		}
	}

	opts := cfg.ResolutionOptions()
	opts.SkipDrafting = resolveNoDraft
	if cfg.Verbose {
		opts.OnProgress = func(e resolution.ProgressEvent) {
			_, _ = fmt.Fprintf(os.Stderr, "[%s] %s\n", e.Step, e.Message)
		}
	}

	orchestrator := resolution.NewOrchestrator(index, drafter, d.metrics)
	items, err := orchestrator.Resolve(ctx, fragments, opts)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stderr)
		for i := range items {
			printer.PrintResolvedItem(&items[i])
		}
		printer.PrintSummary(items)
	}

	out := ResolveOutput{Items: items, Suggestions: resolution.Suggestions(items, resolveSuggestions)}
	return writeJSON(resolveOutputFile, out)
}

// collectFragments returns explicit fragments as given, or splits free text
// from text or the file at path.
func collectFragments(text, path string, fragments []string) ([]string, error) {
	if len(fragments) > 0 {
		return fragments, nil
	}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read assessment file: %w", err)
		}
		text = string(content)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("one of --text, --file or --fragment is required")
	}

	split := resolution.SplitAssessment(text)
	if len(split) == 0 {
		return nil, fmt.Errorf("no fragments found in assessment text")
	}
	return split, nil
}
