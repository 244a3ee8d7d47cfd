package toolid

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{0,123}$`)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"weather":          "weather",
		"web search":       "web_search",
		"1password":        "_1password",
		"":                 "_",
		"@scope/pkg":       "_scope_pkg",
		"héllo":            "h_llo",
		"dots.and-dashes_": "dots.and-dashes_",
		"-leading-dash":    "_-leading-dash",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestSanitizeTruncates(t *testing.T) {
	got := Sanitize(strings.Repeat("a", 300))
	assert.Len(t, got, MaxLength)
}

func TestEncodeSimple(t *testing.T) {
	assert.Equal(t, "github_create_issue", Encode("github", "create_issue"))
	assert.Equal(t, "web_search_run", Encode("web search", "run"))
}

func TestEncodeAlwaysValid(t *testing.T) {
	inputs := []string{
		"",
		"!!!",
		"////",
		"日本語",
		strings.Repeat("x", 10),
		strings.Repeat("y", 123),
		strings.Repeat("z", 500),
		"9lives",
		"a b c",
	}
	for _, server := range inputs {
		for _, tool := range inputs {
			token := Encode(server, tool)
			assert.LessOrEqual(t, len(token), MaxLength)
			assert.Regexp(t, tokenPattern, token, "Encode(%q, %q)", server, tool)
		}
	}
}

func TestEncodeProportionalSplit(t *testing.T) {
	server := strings.Repeat("s", 100)
	tool := strings.Repeat("t", 100)

	token := Encode(server, tool)
	require.Len(t, token, MaxLength)

	s, tl := Decode(token)
	assert.Len(t, s, 61)
	assert.Len(t, tl, 62)

	token = Encode(strings.Repeat("s", 150), strings.Repeat("t", 50))
	require.Len(t, token, MaxLength)
	// server is cut to 124 by Sanitize first, so the split is 124:50.
	s, tl = Decode(token)
	assert.Len(t, s, 124*123/174)
	assert.Len(t, tl, 123-124*123/174)
}

func TestEncodeIsDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, Encode("my server", "do/thing"), Encode("my server", "do/thing"))
	}
}

func TestDecodeNaive(t *testing.T) {
	server, tool := Decode("github_create_issue")
	assert.Equal(t, "github", server)
	assert.Equal(t, "create_issue", tool)

	server, tool = Decode("noseparator")
	assert.Equal(t, "noseparator", server)
	assert.Equal(t, "", tool)
}

func TestDecodeWithServerNamesPrefersLongest(t *testing.T) {
	names := []string{"tool", "tool_server"}

	server, tool := DecodeWithServerNames("tool_server_do_thing", names)
	assert.Equal(t, "tool_server", server)
	assert.Equal(t, "do_thing", tool)

	server, tool = DecodeWithServerNames("tool_run", names)
	assert.Equal(t, "tool", server)
	assert.Equal(t, "run", tool)
}

func TestDecodeWithServerNamesReturnsOriginalName(t *testing.T) {
	server, tool := DecodeWithServerNames(Encode("web search", "query"), []string{"web search"})
	assert.Equal(t, "web search", server)
	assert.Equal(t, "query", tool)
}

func TestDecodeWithServerNamesFallsBack(t *testing.T) {
	server, tool := DecodeWithServerNames("other_tool_name", []string{"github"})
	assert.Equal(t, "other", server)
	assert.Equal(t, "tool_name", tool)
}

func TestRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"github", "create_issue"},
		{"tool-server", "do_thing"},
		{"tool", "server_do_thing"},
		{"my_server", "list.files"},
		{"_private", "x"},
	}
	for _, p := range pairs {
		token := Encode(p[0], p[1])
		require.Less(t, len(token), MaxLength)
		server, tool := DecodeWithServerNames(token, []string{p[0]})
		assert.Equal(t, p[0], server)
		assert.Equal(t, p[1], tool)
		assert.Equal(t, token, Encode(server, tool))
	}
}

func TestDistinctPairsDoNotCollide(t *testing.T) {
	a := Encode("tool-server", "do_thing")
	b := Encode("tool", "server_do_thing")
	assert.NotEqual(t, a, b)
}
