package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/worktype-resolver/internal/db"
	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/matching"
	"github.com/jonathan/worktype-resolver/internal/resolution"
	"github.com/jonathan/worktype-resolver/internal/schemas"
	"github.com/jonathan/worktype-resolver/internal/similarity"
	"github.com/jonathan/worktype-resolver/internal/types"
)

var acceptDraftCmd = &cobra.Command{
	Use:   "accept-draft",
	Short: "Add a reviewed draft to the catalog",
	Long: `Validates a reviewed draft work type, rejects it when the catalog already holds a
work type scoring at or above the hard threshold against its name, inserts it and
computes its name vector.`,
	RunE: runAcceptDraft,
}

var (
	acceptDraftFile   string
	acceptDraftEditor string
)

func init() {
	acceptDraftCmd.Flags().StringVarP(&acceptDraftFile, "file", "f", "", "Path to the draft JSON file (required)")
	acceptDraftCmd.Flags().StringVar(&acceptDraftEditor, "editor", "", "UUID of the curator accepting the draft (required)")

	if err := acceptDraftCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("failed to mark file flag as required: %v", err))
	}
	if err := acceptDraftCmd.MarkFlagRequired("editor"); err != nil {
		panic(fmt.Sprintf("failed to mark editor flag as required: %v", err))
	}

	rootCmd.AddCommand(acceptDraftCmd)
}

// DuplicateError reports that an equivalent work type is already in the catalog.
type DuplicateError struct {
	Name     string
	Existing *types.Candidate
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("draft %q duplicates existing work type %q (score %.2f)",
		e.Name, e.Existing.WorkType.Name, e.Existing.Score)
}

// workTypeCreator is the part of the catalog store accept-draft writes to.
type workTypeCreator interface {
	CreateWorkType(ctx context.Context, wt *types.WorkType) error
	UpdateNameVector(ctx context.Context, id uuid.UUID, vec []float32) error
}

func runAcceptDraft(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	editor, err := uuid.Parse(acceptDraftEditor)
	if err != nil {
		return fmt.Errorf("invalid editor format: %w", err)
	}

	content, err := os.ReadFile(acceptDraftFile)
	if err != nil {
		return fmt.Errorf("failed to read draft file: %w", err)
	}
	draft, err := parseDraft(content)
	if err != nil {
		return err
	}

	d := &deps{cfg: cfg}
	defer d.Close()
	if err := d.requireStore(ctx); err != nil {
		return err
	}
	if err := d.openEmbedder(ctx); err != nil {
		return err
	}
	index, err := d.index()
	if err != nil {
		return fmt.Errorf("failed to build similarity index: %w", err)
	}

	wt, err := acceptDraft(ctx, draft, &editor, index, d.store, d.embedder, cfg.Thresholds())
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Accepted %q as %s\n", wt.Name, wt.ID)
	return nil
}

// parseDraft validates a draft document against the draft schema and decodes it.
func parseDraft(content []byte) (*types.DraftWorkType, error) {
	if err := schemas.ValidateDraft(content); err != nil {
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			return nil, fmt.Errorf("draft does not validate against schema: %w", err)
		}
		return nil, fmt.Errorf("failed to validate draft: %w", err)
	}

	var draft types.DraftWorkType
	if err := json.Unmarshal(content, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft JSON: %w", err)
	}
	return &draft, nil
}

// findDuplicate returns the best catalog candidate for name when it scores
// at or above the hard threshold.
func findDuplicate(ctx context.Context, finder resolution.Finder, name string, thresholds matching.Thresholds) *types.Candidate {
	search := finder.FindCandidates(ctx, types.NewFragment(name), 1)
	if len(search.Candidates) == 0 {
		return nil
	}
	best := search.Candidates[0]
	if best.Score >= thresholds.Hard {
		return &best
	}
	return nil
}

// acceptDraft turns a reviewed draft into a catalog entry. The name vector
// is computed after the insert; an embedding failure leaves the vector for
// the next backfill.
func acceptDraft(
	ctx context.Context,
	draft *types.DraftWorkType,
	editor *uuid.UUID,
	finder resolution.Finder,
	store workTypeCreator,
	embedder llm.Embedder,
	thresholds matching.Thresholds,
) (*types.WorkType, error) {
	wt := draft.ToWorkType(editor)
	if err := types.ValidateWorkType(wt); err != nil {
		return nil, err
	}

	if dup := findDuplicate(ctx, finder, wt.Name, thresholds); dup != nil {
		return nil, &DuplicateError{Name: wt.Name, Existing: dup}
	}

	if err := store.CreateWorkType(ctx, wt); err != nil {
		return nil, err
	}

	if embedder == nil {
		return wt, nil
	}
	vec, err := embedder.Embed(ctx, similarity.CleanText(wt.Name))
	if err == nil {
		err = store.UpdateNameVector(ctx, wt.ID, vec)
	}
	if err != nil {
		slog.WarnContext(ctx, "cli: work type accepted without a name vector", "id", wt.ID, "error", err)
		return wt, nil
	}
	wt.NameVec = vec
	return wt, nil
}

var _ workTypeCreator = (*db.Store)(nil)
