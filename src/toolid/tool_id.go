// Package toolid maps a (server name, tool name) pair onto a single flat
// identifier that is accepted as a function name by LLM tool-calling APIs.
//
// A token starts with a letter or underscore, contains only letters, digits,
// underscores, dots and dashes, and is at most MaxLength bytes long. Encoding
// is deterministic; decoding is exact only when the caller supplies the list
// of server names that may have produced the token.
package toolid

import (
	"sort"
	"strings"
)

const (
	// MaxLength is the longest token Encode will ever produce.
	MaxLength = 124
	// Separator joins the server and tool halves of a token.
	Separator = "_"
)

func isAllowed(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '_' || r == '.' || r == '-'
}

func isLeading(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

// Sanitize rewrites name so that it satisfies the token character rules on
// its own: disallowed runes become '_', a leading '_' is added when the first
// character is not a letter or underscore, and the result is cut to MaxLength.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 1)
	for _, r := range name {
		if isAllowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || !isLeading(out[0]) {
		out = "_" + out
	}
	if len(out) > MaxLength {
		out = out[:MaxLength]
	}
	return out
}

// Encode builds the flat token for a tool exposed by a server. When the two
// sanitized halves do not fit, the available room is split between them in
// proportion to their lengths.
func Encode(serverName, toolName string) string {
	server := Sanitize(serverName)
	tool := Sanitize(toolName)

	if len(server)+len(tool)+len(Separator) <= MaxLength {
		return server + Separator + tool
	}

	room := MaxLength - len(Separator)
	total := len(server) + len(tool)
	serverPortion := len(server) * room / total
	toolPortion := room - serverPortion
	if toolPortion > len(tool) {
		toolPortion = len(tool)
	}
	return server[:serverPortion] + Separator + tool[:toolPortion]
}

// Decode splits a token on its first separator. It cannot recover server
// names that contain the separator; prefer DecodeWithServerNames.
func Decode(token string) (serverName, toolName string) {
	server, tool, _ := strings.Cut(token, Separator)
	return server, tool
}

// DecodeWithServerNames resolves the server half of token against the known
// server names. Longer sanitized names are tried first so that a short name
// that happens to prefix a longer one never wins. The returned server name is
// the original, unsanitized entry from serverNames. Tokens that match no
// known server fall back to Decode.
func DecodeWithServerNames(token string, serverNames []string) (serverName, toolName string) {
	type candidate struct {
		original  string
		sanitized string
	}
	candidates := make([]candidate, 0, len(serverNames))
	for _, name := range serverNames {
		candidates = append(candidates, candidate{original: name, sanitized: Sanitize(name)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].sanitized) > len(candidates[j].sanitized)
	})

	for _, c := range candidates {
		prefix := c.sanitized + Separator
		if strings.HasPrefix(token, prefix) {
			return c.original, token[len(prefix):]
		}
	}
	return Decode(token)
}
