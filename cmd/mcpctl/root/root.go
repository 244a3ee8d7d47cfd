package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcp-chatbot/mcp-manager/src/config"
	"github.com/mcp-chatbot/mcp-manager/src/manager"
	"github.com/mcp-chatbot/mcp-manager/src/repository"
)

// defaultSQLiteFile is used when MCP_STORAGE=sqlite names no path.
const defaultSQLiteFile = "mcp-servers.db"

type globalFlags struct {
	configPath string
	sqlitePath string
	envFile    string
	logLevel   string
}

// NewRootCmd builds the mcpctl command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "mcpctl",
		Short:         "Manage and call MCP servers from the terminal",
		Long:          "mcpctl keeps a registry of MCP servers in a config file or SQLite database, connects to them and calls their tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "server config file (.json, .yaml, .yml or .toml)")
	pf.StringVar(&g.sqlitePath, "sqlite", "", "SQLite database holding server configs")
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file consulted for settings and ${VAR} substitution")
	pf.StringVar(&g.logLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	cmd.AddCommand(
		newServersCmd(g),
		newToolsCmd(g),
		newCallCmd(g),
		newAddCmd(g),
		newRemoveCmd(g),
		newRefreshCmd(g),
	)
	return cmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.Bold).Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}

// options resolves settings from the environment and the dotenv file, then
// applies the command line overrides.
func (g *globalFlags) options() (*config.Options, error) {
	if g.configPath != "" && g.sqlitePath != "" {
		return nil, errors.New("--config and --sqlite are mutually exclusive")
	}

	var sources []config.VariablesSource
	if g.envFile != "" {
		if _, err := os.Stat(g.envFile); err == nil {
			sources = append(sources, config.NewDotEnv(g.envFile))
		}
	}
	opts, err := config.FromEnv(nil, sources...)
	if err != nil {
		return nil, err
	}

	switch {
	case g.configPath != "":
		opts.Storage, opts.ConfigPath = config.StorageFile, g.configPath
	case g.sqlitePath != "":
		opts.Storage, opts.SQLitePath = config.StorageSQLite, g.sqlitePath
	}
	if g.logLevel != "" {
		if _, err := logrus.ParseLevel(g.logLevel); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		opts.LogLevel = g.logLevel
	}
	return opts, nil
}

func newLogger(opts *config.Options, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(opts.Level())
	return l
}

// openStorage builds the configured backend. A CLI run is short lived, so
// without an explicit choice the default config file is used instead of
// memory.
func openStorage(opts *config.Options, log logrus.FieldLogger) (repository.ConfigStorage, func() error, error) {
	noop := func() error { return nil }

	kind := opts.StorageKind()
	if opts.Storage == "" && kind == config.StorageMemory {
		kind = config.StorageFile
	}
	switch kind {
	case config.StorageSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = defaultSQLiteFile
		}
		s, err := repository.NewSQLiteConfigStorage(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorageFile:
		s, err := repository.NewFileConfigStorage(opts.ConfigPath,
			repository.WithResolver(opts.Resolver),
			repository.WithFileLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return repository.NewInMemoryConfigStorage(), noop, nil
	}
}

// run builds a manager from the resolved options, initializes it, hands it
// to fn and cleans it up afterwards.
func (g *globalFlags) run(cmd *cobra.Command, fn func(ctx context.Context, m *manager.Manager) error) error {
	opts, err := g.options()
	if err != nil {
		return err
	}
	log := newLogger(opts, cmd.ErrOrStderr())

	storage, closeStorage, err := openStorage(opts, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStorage(); err != nil {
			log.WithError(err).Warn("Failed to close storage")
		}
	}()

	m := manager.New(storage,
		manager.WithAutoDisconnect(opts.AutoDisconnect),
		manager.WithConnectTimeout(opts.ConnectTimeout),
		manager.WithAddTimeout(opts.AddTimeout),
		manager.WithRemoteOnly(opts.RemoteOnly),
		manager.WithAllowAddServers(opts.AllowAddServers),
		manager.WithLogger(log),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer m.Cleanup(context.Background())
	if err := m.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, m)
}
