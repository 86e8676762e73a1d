// Package observability provides formatted output utilities for verbose CLI mode
// and OpenTelemetry counters for the resolution pipeline.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/worktype-resolver/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = truncate(line, boxWidth-4)
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintResolvedItem outputs the outcome for one fragment.
func (p *Printer) PrintResolvedItem(item *types.ResolvedItem) {
	if item == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Fragment: %s\n", item.Fragment.Raw))
	sb.WriteString(fmt.Sprintf("Tier:     %s\n", item.Tier))

	switch {
	case item.Match != nil:
		writeCandidate(&sb, "Match", item.Match)
	case len(item.Candidates) > 0:
		sb.WriteString(fmt.Sprintf("Candidates (%d):\n", len(item.Candidates)))
		count := min(len(item.Candidates), maxItemsToShow)
		for i := 0; i < count; i++ {
			c := item.Candidates[i]
			sb.WriteString(fmt.Sprintf("  • %s  %.2f (%s)\n", c.WorkType.Name, c.Score, c.Basis))
		}
		if len(item.Candidates) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(item.Candidates)-maxItemsToShow))
		}
	case item.Draft != nil:
		sb.WriteString(fmt.Sprintf("Draft:    %s\n", item.Draft.Name))
		sb.WriteString(fmt.Sprintf("          %s, %s (%s)\n", item.Draft.ParentBucket, item.Draft.MeasurementType, item.Draft.SuggestedUnits))
	default:
		sb.WriteString("Unresolved\n")
	}

	if len(item.Degraded) > 0 {
		reasons := make([]string, len(item.Degraded))
		for i, r := range item.Degraded {
			reasons[i] = string(r)
		}
		sb.WriteString(fmt.Sprintf("Degraded: %s\n", strings.Join(reasons, ", ")))
	}

	p.printBox("RESOLVED FRAGMENT", strings.TrimSuffix(sb.String(), "\n"))
}

func writeCandidate(sb *strings.Builder, label string, c *types.Candidate) {
	sb.WriteString(fmt.Sprintf("%s:    %s\n", label, c.WorkType.Name))
	sb.WriteString(fmt.Sprintf("          %s, %s (%s)\n", c.WorkType.ParentBucket, c.WorkType.MeasurementType, c.WorkType.SuggestedUnits))
	sb.WriteString(fmt.Sprintf("Score:    %.2f (%s, lexical %.2f)\n", c.Score, c.Basis, c.LexicalScore))
}

// PrintSummary outputs tier counts for a resolved batch.
func (p *Printer) PrintSummary(items []types.ResolvedItem) {
	if len(items) == 0 {
		return
	}

	counts := make(map[types.Tier]int)
	drafted, unresolved, degraded := 0, 0, 0
	for i := range items {
		counts[items[i].Tier]++
		if items[i].Draft != nil {
			drafted++
		}
		if !items[i].Resolved() && len(items[i].Candidates) == 0 {
			unresolved++
		}
		if len(items[i].Degraded) > 0 {
			degraded++
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Fragments:  %d\n", len(items)))
	sb.WriteString(fmt.Sprintf("Accepted:   %d\n", counts[types.TierAccepted]))
	sb.WriteString(fmt.Sprintf("Ambiguous:  %d\n", counts[types.TierAmbiguous]))
	sb.WriteString(fmt.Sprintf("Drafted:    %d\n", drafted))
	sb.WriteString(fmt.Sprintf("Unresolved: %d", unresolved))
	if degraded > 0 {
		sb.WriteString(fmt.Sprintf("\nDegraded:   %d", degraded))
	}

	p.printBox("RESOLUTION SUMMARY", sb.String())
}

// PrintDrafts outputs generated drafts.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintDrafts(drafts []types.DraftWorkType) {
	if len(drafts) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO VALID DRAFTS")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generated %d drafts:\n\n", len(drafts)))
	for i, d := range drafts {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", d.FragmentIndex, d.Name))
		sb.WriteString(fmt.Sprintf("    %s, %s (%s)", d.ParentBucket, d.MeasurementType, d.SuggestedUnits))
		if i < len(drafts)-1 {
			sb.WriteString("\n\n")
		}
	}

	p.printBox("DRAFT WORK TYPES", sb.String())
}
