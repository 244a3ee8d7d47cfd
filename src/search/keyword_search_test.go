package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-chatbot/mcp-manager/src/tools"
)

type staticSource map[string]*tools.MCPTool

func (s staticSource) Tools() map[string]*tools.MCPTool { return s }

func wrap(server, name, description string) *tools.MCPTool {
	return tools.NewMCPTool(tools.Tool{Name: name, Description: description}, nil).WithOrigin(server, server)
}

func testSource() staticSource {
	return staticSource{
		"files_read_file":   wrap("files", "read_file", "Read the contents of a file"),
		"files_list_dir":    wrap("files", "list_dir", "List entries of a directory"),
		"web_fetch":         wrap("web", "fetch", "Fetch a URL and return its body"),
		"github_search":     wrap("github", "search", "Search code repositories"),
		"github_open_issue": wrap("github", "open_issue", "Open an issue"),
	}
}

func TestSearchRanksNameMatchesFirst(t *testing.T) {
	s := NewKeywordSearch(testSource(), 0.5)

	res := s.Search("read a file", 0)
	require.NotEmpty(t, res)
	assert.Equal(t, "files_read_file", res[0].Token)

	res = s.Search("fetch", 1)
	require.Len(t, res, 1)
	assert.Equal(t, "web_fetch", res[0].Token)
	assert.Equal(t, "fetch", res[0].Tool.OriginToolName)
}

func TestSearchBreaksTiesByToken(t *testing.T) {
	s := NewKeywordSearch(testSource(), 0.5)
	res := s.Search("github", 0)
	require.Len(t, res, 2)
	assert.Equal(t, "github_open_issue", res[0].Token)
	assert.Equal(t, "github_search", res[1].Token)
	assert.Equal(t, res[0].Score, res[1].Score)
}

func TestSearchIgnoresShortDescriptionWords(t *testing.T) {
	s := NewKeywordSearch(testSource(), 0.5)
	assert.Empty(t, s.Search("an of", 0))
	assert.Empty(t, s.Search("   ", 0))
	assert.Empty(t, s.Search("kubernetes", 0))
}
