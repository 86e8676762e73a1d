package drafting

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/prompts"
	"github.com/jonathan/worktype-resolver/internal/types"
)

const (
	promptFile    = "drafting.json"
	systemPrompt  = "draft-work-types-system"
	userPrompt    = "draft-work-types-user"
	cacheKeyScope = "drafts:"
)

// CacheKey derives the cache key from the normalized fragments in order.
func CacheKey(fragments []types.Fragment) string {
	normalized := make([]string, len(fragments))
	for i, f := range fragments {
		normalized[i] = types.NormalizeFragment(f.Raw)
	}
	// a []string always marshals
	data, _ := json.Marshal(normalized)
	sum := sha256.Sum256(data)
	return cacheKeyScope + hex.EncodeToString(sum[:])
}

// BuildMessages renders the system and user prompts for a batch of fragments.
func BuildMessages(fragments []types.Fragment) ([]llm.Message, error) {
	systemTemplate, err := prompts.Get(promptFile, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to load system prompt: %w", err)
	}
	userTemplate, err := prompts.Get(promptFile, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to load user prompt: %w", err)
	}

	system, err := prompts.FormatStrict(systemTemplate, map[string]string{
		"Buckets":          bucketList(),
		"MeasurementTypes": measurementList(),
		"UnitRules":        unitRules(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}

	var sb strings.Builder
	for i, f := range fragments {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("[%d] %q", i+1, f.Normalized))
	}
	user, err := prompts.FormatStrict(userTemplate, map[string]string{"Fragments": sb.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to render user prompt: %w", err)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

func bucketList() string {
	names := make([]string, len(types.ParentBuckets))
	for i, b := range types.ParentBuckets {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}

func measurementList() string {
	kinds := types.MeasurementTypes()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func unitRules() string {
	kinds := types.MeasurementTypes()
	lines := make([]string, len(kinds))
	for i, k := range kinds {
		lines[i] = fmt.Sprintf("  - For %s: %s", k, strings.Join(types.AllowedUnits(k), ", "))
	}
	return strings.Join(lines, "\n")
}
