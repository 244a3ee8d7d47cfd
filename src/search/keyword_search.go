package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mcp-chatbot/mcp-manager/src/tools"
)

// ToolSource yields the flattened tool map to rank.
type ToolSource interface {
	Tools() map[string]*tools.MCPTool
}

// Result is a ranked match.
type Result struct {
	Token string
	Tool  *tools.MCPTool
	Score float64
}

// KeywordSearch ranks tools by how well their names and descriptions match
// the words of a query.
type KeywordSearch struct {
	source            ToolSource
	descriptionWeight float64
	wordRegex         *regexp.Regexp
}

// NewKeywordSearch creates a search over source. descriptionWeight scores a
// single word overlap; a query containing a whole name part scores 1.
func NewKeywordSearch(source ToolSource, descriptionWeight float64) *KeywordSearch {
	return &KeywordSearch{
		source:            source,
		descriptionWeight: descriptionWeight,
		wordRegex:         regexp.MustCompile(`[a-z0-9]+`),
	}
}

// Search returns the tools with a positive score, best first, ties broken
// by token. A non-positive limit returns every match.
func (s *KeywordSearch) Search(query string, limit int) []Result {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryWords := make(map[string]struct{})
	for _, w := range s.wordRegex.FindAllString(queryLower, -1) {
		queryWords[w] = struct{}{}
	}
	if len(queryWords) == 0 {
		return nil
	}

	var scored []Result
	for token, t := range s.source.Tools() {
		var score float64

		for _, part := range []string{t.ServerName, t.OriginToolName} {
			partLower := strings.ToLower(part)
			if partLower != "" && strings.Contains(queryLower, partLower) {
				score += 1.0
			}
			for _, w := range s.wordRegex.FindAllString(partLower, -1) {
				if _, ok := queryWords[w]; ok {
					score += s.descriptionWeight
				}
			}
		}

		// Short words are mostly noise in descriptions.
		for _, w := range s.wordRegex.FindAllString(strings.ToLower(t.Description), -1) {
			if len(w) <= 2 {
				continue
			}
			if _, ok := queryWords[w]; ok {
				score += s.descriptionWeight
			}
		}

		if score > 0 {
			scored = append(scored, Result{Token: token, Tool: t, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Token < scored[j].Token
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
