package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/worktype-resolver/internal/observability"
	"github.com/jonathan/worktype-resolver/internal/types"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Generate work type drafts for fragments",
	Long:  "Runs the draft generator alone on the given fragments, without consulting the catalog.",
	RunE:  runDraft,
}

var (
	draftFragments  []string
	draftOutputFile string
)

func init() {
	draftCmd.Flags().StringArrayVar(&draftFragments, "fragment", nil, "A fragment to draft (repeatable, required)")
	draftCmd.Flags().StringVarP(&draftOutputFile, "out", "o", "", "Path to output JSON file (default stdout)")

	if err := draftCmd.MarkFlagRequired("fragment"); err != nil {
		panic(fmt.Sprintf("failed to mark fragment flag as required: %v", err))
	}

	rootCmd.AddCommand(draftCmd)
}

// DraftOutput is the JSON document written by the draft command.
type DraftOutput struct {
	Drafts   []types.DraftWorkType  `json:"drafts"`
	Degraded []types.DegradedReason `json:"degraded,omitempty"`
	Cached   bool                   `json:"cached"`
}

func runDraft(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}

	d := &deps{cfg: cfg}
	defer d.Close()
	if err := d.openCache(ctx); err != nil {
		return err
	}
	if err := d.openClient(ctx); err != nil {
		return err
	}
	if err := d.openMetrics(ctx); err != nil {
		return err
	}
	gen, err := d.generator()
	if err != nil {
		return fmt.Errorf("failed to create draft generator: %w", err)
	}

	fragments := make([]types.Fragment, len(draftFragments))
	for i, raw := range draftFragments {
		fragments[i] = types.NewFragment(raw)
	}

	drafts := gen.Generate(ctx, fragments)
	if cfg.Verbose {
		observability.NewPrinter(os.Stderr).PrintDrafts(drafts.Items)
	}

	items := drafts.Items
	if items == nil {
		items = []types.DraftWorkType{}
	}
	return writeJSON(draftOutputFile, DraftOutput{Drafts: items, Degraded: drafts.Degraded, Cached: drafts.Cached})
}
