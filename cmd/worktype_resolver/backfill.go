package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/similarity"
	"github.com/jonathan/worktype-resolver/internal/types"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill-embeddings",
	Short: "Compute name vectors for catalog work types",
	Long: `Embeds the cleaned name of every catalog work type that has no stored vector.
With --all every active work type is re-embedded, e.g. after changing the embedding model.`,
	RunE: runBackfill,
}

var backfillAll bool

func init() {
	backfillCmd.Flags().BoolVar(&backfillAll, "all", false, "Re-embed every active work type, not only those missing a vector")

	rootCmd.AddCommand(backfillCmd)
}

// vectorStore is the part of the catalog store the backfill writes to.
type vectorStore interface {
	ListMissingVectors(ctx context.Context, all bool) ([]*types.WorkType, error)
	UpdateNameVector(ctx context.Context, id uuid.UUID, vec []float32) error
}

// BackfillResult counts the outcome of a backfill run.
type BackfillResult struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.VectorEnabled() {
		return fmt.Errorf("vector similarity is disabled (%s=false)", "ENABLE_VECTOR_SIMILARITY")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}

	d := &deps{cfg: cfg}
	defer d.Close()
	if err := d.requireStore(ctx); err != nil {
		return err
	}
	if err := d.openEmbedder(ctx); err != nil {
		return err
	}

	result, err := backfillVectors(ctx, d.store, d.embedder, backfillAll)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Updated %d work types (%d failed)\n", result.Updated, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d work types could not be embedded", result.Failed)
	}
	return nil
}

// backfillVectors embeds the cleaned names of the listed work types. A
// failure on one entry is logged and counted; the run continues.
func backfillVectors(ctx context.Context, store vectorStore, embedder llm.Embedder, all bool) (BackfillResult, error) {
	var result BackfillResult

	entries, err := store.ListMissingVectors(ctx, all)
	if err != nil {
		return result, fmt.Errorf("failed to list work types: %w", err)
	}

	logger := slog.Default().With("component", "backfill")
	for _, wt := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		vec, err := embedder.Embed(ctx, similarity.CleanText(wt.Name))
		if err == nil && len(vec) != embedder.Dimensions() {
			err = fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), embedder.Dimensions())
		}
		if err == nil {
			err = store.UpdateNameVector(ctx, wt.ID, vec)
		}
		if err != nil {
			logger.WarnContext(ctx, "backfill: failed to embed work type", "id", wt.ID, "name", wt.Name, "error", err)
			result.Failed++
			continue
		}

		logger.DebugContext(ctx, "backfill: embedded work type", "id", wt.ID, "name", wt.Name)
		result.Updated++
	}
	return result, nil
}
