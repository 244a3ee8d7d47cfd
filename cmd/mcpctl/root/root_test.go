package root

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-chatbot/mcp-manager/internal/mcptest"
	"github.com/mcp-chatbot/mcp-manager/src/config"
	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error", "--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseInput(t *testing.T) {
	got, err := parseInput(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = parseInput([]string{`{"text": "hi", "n": 2}`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi", "n": float64(2)}, got)

	got, err = parseInput([]string{"text=hello world", "count=3", "ratio=0.5", "on=TRUE", "zip=010", "raw=inf", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"text":  "hello world",
		"count": int64(3),
		"ratio": 0.5,
		"on":    true,
		"zip":   int64(10),
		"raw":   "inf",
		"empty": "",
	}, got)

	_, err = parseInput([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseInput([]string{"=x"})
	assert.Error(t, err)
	_, err = parseInput([]string{"{broken"})
	assert.Error(t, err)
}

func TestAddFlagsServerConfig(t *testing.T) {
	f := &addFlags{command: "npx", args: []string{"-y", "server"}, env: []string{"TOKEN=a=b"}, cwd: "/srv"}
	cfg, err := f.serverConfig()
	require.NoError(t, err)
	stdio := cfg.(*mcpprov.StdioServerConfig)
	assert.Equal(t, []string{"-y", "server"}, stdio.Args)
	assert.Equal(t, map[string]string{"TOKEN": "a=b"}, stdio.Env)
	assert.Equal(t, "/srv", stdio.WorkingDir)

	f = &addFlags{url: "https://example.test/mcp", headers: []string{"Authorization=Bearer x"}}
	cfg, err = f.serverConfig()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer x"}, cfg.(*mcpprov.RemoteServerConfig).Headers)

	for _, bad := range []*addFlags{
		{},
		{command: "npx", url: "https://example.test"},
		{command: "npx", headers: []string{"A=b"}},
		{url: "https://example.test", env: []string{"A=b"}},
		{command: "npx", env: []string{"missing-equals"}},
	} {
		_, err := bad.serverConfig()
		assert.Error(t, err)
	}
}

func TestOptionsFlagOverrides(t *testing.T) {
	g := &globalFlags{configPath: "a.json", sqlitePath: "b.db"}
	_, err := g.options()
	assert.Error(t, err)

	g = &globalFlags{sqlitePath: "b.db"}
	opts, err := g.options()
	require.NoError(t, err)
	assert.Equal(t, config.StorageSQLite, opts.StorageKind())

	g = &globalFlags{logLevel: "loud"}
	_, err = g.options()
	assert.Error(t, err)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MCP_CONFIG_PATH=from-dotenv.yaml\n"), 0o644))
	g = &globalFlags{envFile: envFile}
	opts, err = g.options()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.yaml", opts.ConfigPath)
	assert.Equal(t, config.StorageFile, opts.StorageKind())
}

func TestCommandsAgainstConfigFile(t *testing.T) {
	url := mcptest.StartStreamable(t, mcptest.NewServer("demo"))
	path := filepath.Join(t.TempDir(), "servers.yaml")

	out, err := runCLI(t, "--config", path, "add", "demo", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "demo (demo) with 3 tools")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), url)

	out, err = runCLI(t, "--config", path, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "demo_echo")
	assert.Contains(t, out, "demo_sleep")

	out, err = runCLI(t, "--config", path, "tools", "--search", "echo text")
	require.NoError(t, err)
	assert.Contains(t, out, "demo_echo")
	assert.NotContains(t, out, "demo_sleep")

	out, err = runCLI(t, "--config", path, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "connected")

	out, err = runCLI(t, "--config", path, "call", "demo_echo", "text=over the wire")
	require.NoError(t, err)
	assert.Contains(t, out, "over the wire")

	out, err = runCLI(t, "--config", path, "call", "demo_fail")
	assert.ErrorIs(t, err, errToolFailed)
	assert.Contains(t, out, "ToolExecutionError")

	_, err = runCLI(t, "--config", path, "call", "demo_missing")
	assert.Error(t, err)

	out, err = runCLI(t, "--config", path, "refresh", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "connected")

	_, err = runCLI(t, "--config", path, "remove", "demo")
	require.NoError(t, err)

	out, err = runCLI(t, "--config", path, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, "No servers configured.")
}

func TestAddRejectsInvalidName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	_, err := runCLI(t, "--config", path, "add", "bad name", "--url", "https://example.test/mcp")
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnreachableServerIsListedAsErrored(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL + "/mcp"
	down.Close()
	path := filepath.Join(t.TempDir(), "servers.json")

	out, err := runCLI(t, "--config", path, "add", "down", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "errored")
	assert.Contains(t, out, "mcpctl refresh down")

	out, err = runCLI(t, "--config", path, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, "down")
	assert.Contains(t, out, "errored")

	_, err = runCLI(t, "--config", path, "refresh", "down")
	require.NoError(t, err, "errored servers stay registered and can be refreshed")
}
