package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/worktype-resolver/internal/db"
	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/similarity"
	"github.com/jonathan/worktype-resolver/internal/types"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and curate catalog work types",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active work types",
	RunE:  runCatalogList,
}

var catalogRenameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Rename a work type and recompute its name vector",
	RunE:  runCatalogRename,
}

var catalogRetireCmd = &cobra.Command{
	Use:   "retire",
	Short: "Soft-retire a work type so it no longer matches",
	RunE:  runCatalogRetire,
}

var catalogSetCostCmd = &cobra.Command{
	Use:   "set-cost",
	Short: "Update unit costs and record a cost history snapshot",
	RunE:  runCatalogSetCost,
}

var catalogHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the cost history of a work type, newest first",
	RunE:  runCatalogHistory,
}

var (
	catalogID       string
	catalogEditor   string
	catalogName     string
	catalogMaterial float64
	catalogLabor    float64
	catalogRegion   string
	catalogOutFile  string
)

func init() {
	for _, c := range []*cobra.Command{catalogRenameCmd, catalogRetireCmd, catalogSetCostCmd, catalogHistoryCmd} {
		c.Flags().StringVar(&catalogID, "id", "", "Work type UUID (required)")
		if err := c.MarkFlagRequired("id"); err != nil {
			panic(fmt.Sprintf("failed to mark id flag as required: %v", err))
		}
	}
	for _, c := range []*cobra.Command{catalogRenameCmd, catalogRetireCmd, catalogSetCostCmd} {
		c.Flags().StringVar(&catalogEditor, "editor", "", "UUID of the curator making the change (required)")
		if err := c.MarkFlagRequired("editor"); err != nil {
			panic(fmt.Sprintf("failed to mark editor flag as required: %v", err))
		}
	}

	catalogRenameCmd.Flags().StringVar(&catalogName, "name", "", "New work type name (required)")
	if err := catalogRenameCmd.MarkFlagRequired("name"); err != nil {
		panic(fmt.Sprintf("failed to mark name flag as required: %v", err))
	}

	catalogSetCostCmd.Flags().Float64Var(&catalogMaterial, "material", 0, "Unit material cost")
	catalogSetCostCmd.Flags().Float64Var(&catalogLabor, "labor", 0, "Unit labor cost")
	catalogSetCostCmd.Flags().StringVar(&catalogRegion, "region", types.DefaultCostRegion, "Cost region recorded in history")
	catalogSetCostCmd.MarkFlagsOneRequired("material", "labor")

	catalogListCmd.Flags().StringVarP(&catalogOutFile, "out", "o", "", "Path to output JSON file (default stdout)")
	catalogHistoryCmd.Flags().StringVarP(&catalogOutFile, "out", "o", "", "Path to output JSON file (default stdout)")

	catalogCmd.AddCommand(catalogListCmd, catalogRenameCmd, catalogRetireCmd, catalogSetCostCmd, catalogHistoryCmd)
	rootCmd.AddCommand(catalogCmd)
}

// workTypeRenamer is the part of the catalog store rename writes to.
type workTypeRenamer interface {
	RenameWorkType(ctx context.Context, id uuid.UUID, name string, editor *uuid.UUID) (int, error)
	UpdateNameVector(ctx context.Context, id uuid.UUID, vec []float32) error
}

var nameValidator = validator.New()

// renameWorkType renames an entry and recomputes its vector. The store
// clears the old vector, so an embedding failure leaves it for backfill.
func renameWorkType(ctx context.Context, store workTypeRenamer, embedder llm.Embedder, id uuid.UUID, name string, editor *uuid.UUID) (int, error) {
	if err := nameValidator.Var(name, "required,min=3,max=255"); err != nil {
		return 0, fmt.Errorf("invalid work type name %q: %w", name, err)
	}

	revision, err := store.RenameWorkType(ctx, id, name, editor)
	if err != nil {
		return 0, err
	}

	if embedder == nil {
		return revision, nil
	}
	vec, err := embedder.Embed(ctx, similarity.CleanText(name))
	if err == nil {
		err = store.UpdateNameVector(ctx, id, vec)
	}
	if err != nil {
		slog.WarnContext(ctx, "cli: work type renamed without a name vector", "id", id, "error", err)
	}
	return revision, nil
}

// openCatalogStore loads config and connects to the database for catalog subcommands.
func openCatalogStore(ctx context.Context, cmd *cobra.Command) (*deps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg}
	if err := d.requireStore(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func parseIDs(withEditor bool) (uuid.UUID, *uuid.UUID, error) {
	id, err := uuid.Parse(catalogID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid id format: %w", err)
	}
	if !withEditor {
		return id, nil, nil
	}
	editor, err := uuid.Parse(catalogEditor)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid editor format: %w", err)
	}
	return id, &editor, nil
}

func runCatalogList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	d, err := openCatalogStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	all, err := d.store.GetAll(ctx)
	if err != nil {
		return err
	}
	return writeJSON(catalogOutFile, all)
}

func runCatalogRename(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	id, editor, err := parseIDs(true)
	if err != nil {
		return err
	}
	d, err := openCatalogStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.openEmbedder(ctx); err != nil {
		return err
	}

	revision, err := renameWorkType(ctx, d.store, d.embedder, id, catalogName, editor)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Renamed %s to %q (revision %d)\n", id, catalogName, revision)
	return nil
}

func runCatalogRetire(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	id, editor, err := parseIDs(true)
	if err != nil {
		return err
	}
	d, err := openCatalogStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	retiredAt, err := d.store.RetireWorkType(ctx, id, editor)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Retired %s at %s\n", id, retiredAt.Format(time.RFC3339))
	return nil
}

func runCatalogSetCost(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	id, editor, err := parseIDs(true)
	if err != nil {
		return err
	}

	update := db.CostUpdate{Region: catalogRegion, UpdatedBy: editor}
	if cmd.Flags().Changed("material") {
		update.UnitCostMaterial = &catalogMaterial
	}
	if cmd.Flags().Changed("labor") {
		update.UnitCostLabor = &catalogLabor
	}

	d, err := openCatalogStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	snapshot, err := d.store.UpdateCosts(ctx, id, update)
	if err != nil {
		return err
	}
	return writeJSON("", snapshot)
}

func runCatalogHistory(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	id, _, err := parseIDs(false)
	if err != nil {
		return err
	}
	d, err := openCatalogStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	history, err := d.store.ListCostHistory(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(catalogOutFile, history)
}

var _ workTypeRenamer = (*db.Store)(nil)
