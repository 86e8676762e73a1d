// Package prompts provides a loader for externalized LLM prompt templates.
// Prompts are stored as JSON files and embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// parsed stores decoded prompt files to avoid repeated JSON parsing
var (
	parsed   = make(map[string]map[string]string)
	parsedMu sync.RWMutex
)

var placeholderPattern = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9]*)\}\}`)

// Get retrieves a prompt by filename and key.
// The filename should not include the path (e.g., "drafting.json").
func Get(filename, key string) (string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return "", err
	}

	prompt, exists := prompts[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}

	return prompt, nil
}

// Format replaces placeholders of the form {{.Key}} with values from data.
// Placeholders without a value are left in place.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, "{{."+key+"}}", value)
	}
	return result
}

// FormatStrict is Format but fails if any placeholder is left unfilled.
func FormatStrict(template string, data map[string]string) (string, error) {
	result := Format(template, data)
	if missing := Placeholders(result); len(missing) > 0 {
		return "", fmt.Errorf("unfilled prompt placeholders: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Placeholders returns the sorted, distinct placeholder keys in template.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	sort.Strings(keys)
	return keys
}

// loadFile loads and caches a prompt file.
func loadFile(filename string) (map[string]string, error) {
	parsedMu.RLock()
	if prompts, exists := parsed[filename]; exists {
		parsedMu.RUnlock()
		return prompts, nil
	}
	parsedMu.RUnlock()

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	parsedMu.Lock()
	parsed[filename] = prompts
	parsedMu.Unlock()

	return prompts, nil
}
