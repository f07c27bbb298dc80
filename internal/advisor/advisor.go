// Package advisor suggests recipes for the items in a pantry.
//
// Suggestions are best-effort: any failure is logged and yields no
// suggestions.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// MaxItems is the number of pantry items sent to the model.
const MaxItems = 5

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Advisor turns pantry item names into recipe suggestions.
type Advisor struct {
	gen Generator
}

// New returns an advisor using gen. A nil gen disables suggestions.
func New(gen Generator) *Advisor {
	return &Advisor{gen: gen}
}

// Enabled reports whether a generator is configured.
func (a *Advisor) Enabled() bool {
	return a != nil && a.gen != nil
}

// Suggest returns recipe ideas based on the first MaxItems names. It never
// returns nil.
func (a *Advisor) Suggest(ctx context.Context, names []string) []string {
	if !a.Enabled() || len(names) == 0 {
		return []string{}
	}
	if len(names) > MaxItems {
		names = names[:MaxItems]
	}
	out, err := a.gen.Generate(ctx, Prompt(names))
	if err != nil {
		slog.WarnContext(ctx, "Recipe suggestion failed", "err", err, "items", len(names))
		return []string{}
	}
	return ParseSuggestions(out)
}

// Prompt builds the request sent to the model.
func Prompt(names []string) string {
	return fmt.Sprintf("Suggest a few recipes that use these pantry ingredients: %s. "+
		"Answer with one recipe per line: the recipe name, a colon, then a one sentence description. "+
		"Do not add any other text.", strings.Join(names, ", "))
}

// ParseSuggestions splits a model answer into trimmed non-empty lines with
// bullet or numbering markers removed.
func ParseSuggestions(text string) []string {
	out := []string{}
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•# \t")
		line = trimNumbering(line)
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// trimNumbering removes a leading "1." or "2)" marker.
func trimNumbering(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || (line[i] != '.' && line[i] != ')') {
		return line
	}
	rest := line[i+1:]
	if rest != "" && !unicode.IsSpace(rune(rest[0])) {
		return line
	}
	return rest
}
