package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	mcpapi "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/mcp-chatbot/mcp-manager/src/client"
	"github.com/mcp-chatbot/mcp-manager/src/helpers"
	"github.com/mcp-chatbot/mcp-manager/src/json"
	"github.com/mcp-chatbot/mcp-manager/src/manager"
	"github.com/mcp-chatbot/mcp-manager/src/search"
	"github.com/mcp-chatbot/mcp-manager/src/toolid"
)

var errToolFailed = errors.New("tool reported an error")

// searchWeight scores one word shared between the query and a tool.
const searchWeight = 0.5

func statusColor(s client.Status) *color.Color {
	switch s {
	case client.StatusConnected:
		return color.New(color.FgGreen)
	case client.StatusErrored:
		return color.New(color.FgRed)
	case client.StatusConnecting:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

func newServersCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured servers and their connection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, m *manager.Manager) error {
				list, err := m.GetClients(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No servers configured.")
					return nil
				}
				cyan := color.New(color.FgCyan)
				for _, ce := range list {
					info := ce.Client.Info()
					fmt.Fprintf(out, "%s  %s  %s  %d tools",
						cyan.Sprint(info.Name), ce.ID, statusColor(info.Status).Sprint(info.Status), len(info.ToolInfo))
					if info.Config != nil {
						fmt.Fprintf(out, "  [%s]", info.Config.Type())
					}
					if info.Error != "" {
						fmt.Fprintf(out, "  %s", color.RedString(info.Error))
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

func newToolsCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON bool
		query  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List every tool under its flat name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, m *manager.Manager) error {
				all := m.Tools()
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(all)
				}

				var tokens []string
				if query != "" {
					for _, r := range search.NewKeywordSearch(m, searchWeight).Search(query, limit) {
						tokens = append(tokens, r.Token)
					}
				} else {
					for token := range all {
						tokens = append(tokens, token)
					}
					sort.Strings(tokens)
				}
				green := color.New(color.FgGreen)
				gray := color.New(color.FgHiBlack)
				for _, token := range tokens {
					t, ok := all[token]
					if !ok {
						continue
					}
					fmt.Fprintf(out, "%s  %s\n", green.Sprint(token), gray.Sprintf("(%s/%s)", t.ServerName, t.OriginToolName))
					if t.Description != "" {
						fmt.Fprintf(out, "    %s\n", t.Description)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tool map as JSON")
	cmd.Flags().StringVar(&query, "search", "", "only list tools matching these keywords, best match first")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of --search results")
	return cmd
}

func newCallCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json | key=value ...]",
		Short: "Call a tool by its flat name",
		Long:  "Call a tool by the name printed by `mcpctl tools`. Input is either a single JSON object or key=value pairs; values that look like numbers or booleans are sent as such.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseInput(args[1:])
			if err != nil {
				return err
			}
			token := args[0]
			return g.run(cmd, func(ctx context.Context, m *manager.Manager) error {
				server, tool := toolid.DecodeWithServerNames(token, m.ServerNames())
				gray := color.New(color.FgHiBlack)
				fmt.Fprintln(cmd.ErrOrStderr(), gray.Sprintf("calling %s on %s", tool, server))

				res, err := m.CallToolByToken(ctx, token, input)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
}

func printResult(out io.Writer, res *mcpapi.CallToolResult) error {
	if detail, ok := helpers.ParseErrorResult(res); ok {
		fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed, color.Bold).Sprintf("%s:", detail.Name), detail.Message)
		return errToolFailed
	}
	for _, c := range res.Content {
		if text, ok := mcpapi.AsTextContent(c); ok {
			fmt.Fprintln(out, text.Text)
			continue
		}
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}
	if res.IsError {
		return errToolFailed
	}
	return nil
}

// parseInput reads call arguments: one JSON object, or key=value pairs.
func parseInput(args []string) (map[string]any, error) {
	input := map[string]any{}
	if len(args) == 0 {
		return input, nil
	}
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		if err := json.Unmarshal([]byte(args[0]), &input); err != nil {
			return nil, fmt.Errorf("invalid JSON input: %w", err)
		}
		return input, nil
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", arg)
		}
		input[key] = coerce(value)
	}
	return input, nil
}

func coerce(v string) any {
	switch strings.ToLower(v) {
	case "true", "false":
		return cast.ToBool(strings.ToLower(v))
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := cast.ToFloat64E(v); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return v
}
