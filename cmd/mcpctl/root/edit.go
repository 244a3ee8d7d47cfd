package root

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcp-chatbot/mcp-manager/src/client"
	"github.com/mcp-chatbot/mcp-manager/src/manager"
	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
	"github.com/mcp-chatbot/mcp-manager/src/repository"
)

type addFlags struct {
	command string
	args    []string
	env     []string
	cwd     string
	url     string
	headers []string
}

// serverConfig builds the config described by the flags. Exactly one of
// --command and --url must be given.
func (f *addFlags) serverConfig() (mcpprov.ServerConfig, error) {
	switch {
	case f.command != "" && f.url != "":
		return nil, errors.New("--command and --url are mutually exclusive")
	case f.command != "":
		if len(f.headers) > 0 {
			return nil, errors.New("--header only applies to --url servers")
		}
		cfg := mcpprov.NewStdioServerConfig(f.command, f.args...)
		env, err := parseKV(f.env, "--env")
		if err != nil {
			return nil, err
		}
		for k, v := range env {
			cfg.WithEnv(k, v)
		}
		if f.cwd != "" {
			cfg.WithWorkingDir(f.cwd)
		}
		return cfg, nil
	case f.url != "":
		if len(f.args) > 0 || len(f.env) > 0 || f.cwd != "" {
			return nil, errors.New("--arg, --env and --cwd only apply to --command servers")
		}
		cfg := mcpprov.NewRemoteServerConfig(f.url)
		headers, err := parseKV(f.headers, "--header")
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			cfg.WithHeader(k, v)
		}
		return cfg, nil
	default:
		return nil, errors.New("one of --command or --url is required")
	}
}

func parseKV(pairs []string, flag string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%s %q: expected KEY=VALUE", flag, pair)
		}
		out[k] = v
	}
	return out, nil
}

func newAddCmd(g *globalFlags) *cobra.Command {
	f := &addFlags{}
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store a server config and connect to it",
		Example: "  mcpctl add files --command npx --arg -y --arg @modelcontextprotocol/server-filesystem --arg .\n" +
			"  mcpctl add search --url https://example.com/mcp --header 'Authorization=Bearer ${SEARCH_TOKEN}'",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.serverConfig()
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, m *manager.Manager) error {
				id, err := m.PersistClient(ctx, repository.ServerInsert{Name: args[0], Config: cfg})
				if err != nil {
					return err
				}
				c, err := m.GetClient(ctx, id)
				if err != nil {
					return err
				}
				if c == nil {
					return fmt.Errorf("%w: %s", manager.ErrClientNotFound, id)
				}
				out := cmd.OutOrStdout()
				if status := c.Status(); status != client.StatusConnected {
					fmt.Fprintf(out, "%s %s (%s) %s: %v\n",
						color.YellowString("added"), args[0], id, statusColor(status).Sprint(status), c.LastError())
					fmt.Fprintf(out, "fix the server, then run: mcpctl refresh %s\n", id)
					return nil
				}
				fmt.Fprintf(out, "%s %s (%s) with %d tools\n",
					color.GreenString("added"), args[0], id, len(c.Tools()))
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.command, "command", "", "executable of a stdio server")
	fl.StringArrayVar(&f.args, "arg", nil, "argument passed to --command (repeatable)")
	fl.StringArrayVar(&f.env, "env", nil, "KEY=VALUE added to the server environment (repeatable)")
	fl.StringVar(&f.cwd, "cwd", "", "working directory of the stdio server")
	fl.StringVar(&f.url, "url", "", "endpoint of a remote server")
	fl.StringArrayVar(&f.headers, "header", nil, "KEY=VALUE sent with every request to --url (repeatable)")
	return cmd
}

func newRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a stored server config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, m *manager.Manager) error {
				if err := m.RemoveClient(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("removed"), args[0])
				return nil
			})
		},
	}
}

func newRefreshCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id>",
		Short: "Reconnect a server from its stored config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, m *manager.Manager) error {
				if err := m.RefreshClient(ctx, args[0]); err != nil {
					return err
				}
				c, err := m.GetClient(ctx, args[0])
				if err != nil {
					return err
				}
				if c == nil {
					return fmt.Errorf("%w: %s", manager.ErrClientNotFound, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n",
					color.CyanString("refreshed"), args[0], statusColor(c.Status()).Sprint(c.Status()))
				return nil
			})
		},
	}
}
