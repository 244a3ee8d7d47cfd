package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableNotFound_Error(t *testing.T) {
	err := (&VariableNotFound{VariableName: "FOO"}).Error()
	if !strings.Contains(err, "FOO") {
		t.Errorf("error message should contain variable name; got %s", err)
	}
}

func TestDotEnv_LoadAndGet(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(fpath, []byte("FOO=bar\n"), 0o644))

	d := NewDotEnv(fpath)
	vars, err := d.Load()
	require.NoError(t, err)
	assert.Equal(t, "bar", vars["FOO"])

	val, err := d.Get("FOO")
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	_, err = d.Get("MISSING")
	var nf *VariableNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestResolverPrecedence(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(fpath, []byte("A=from-file\nB=from-file\n"), 0o644))
	t.Setenv("A", "from-env")
	t.Setenv("B", "from-env")
	t.Setenv("C", "from-env")

	r := NewResolver(map[string]string{"A": "inline"}, NewDotEnv(fpath))
	a, _ := r.Get("A")
	b, _ := r.Get("B")
	c, _ := r.Get("C")
	assert.Equal(t, "inline", a)
	assert.Equal(t, "from-file", b)
	assert.Equal(t, "from-env", c)

	_, ok := r.Lookup("MCPMANAGER_SURELY_UNSET")
	assert.False(t, ok)
}

func TestReplaceVars(t *testing.T) {
	r := NewResolver(map[string]string{"TOKEN": "s3cr3t", "HOST": "example.test"})
	in := map[string]any{
		"url":     "https://${HOST}/mcp",
		"headers": map[string]any{"Authorization": "Bearer $TOKEN"},
		"args":    []any{"--token=${TOKEN}", 3, "${MCPMANAGER_SURELY_UNSET}"},
		"env":     map[string]string{"KEY": "$TOKEN"},
	}
	out := r.ReplaceVars(in).(map[string]any)

	assert.Equal(t, "https://example.test/mcp", out["url"])
	assert.Equal(t, "Bearer s3cr3t", out["headers"].(map[string]any)["Authorization"])
	assert.Equal(t, []any{"--token=s3cr3t", 3, "${MCPMANAGER_SURELY_UNSET}"}, out["args"])
	assert.Equal(t, map[string]string{"KEY": "s3cr3t"}, out["env"])
	assert.Equal(t, "https://${HOST}/mcp", in["url"], "input is not mutated")

	assert.Equal(t, []string{"MCPMANAGER_SURELY_UNSET"}, r.Missing(in))
}

func TestFromEnvDefaults(t *testing.T) {
	o, err := FromEnv(nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, o.AutoDisconnect)
	assert.Equal(t, 15*time.Second, o.ConnectTimeout)
	assert.Equal(t, 20*time.Second, o.AddTimeout)
	assert.True(t, o.AllowAddServers)
	assert.False(t, o.RemoteOnly)
	assert.Equal(t, StorageMemory, o.StorageKind())
	assert.Equal(t, logrus.InfoLevel, o.Level())
}

func TestFromEnvValues(t *testing.T) {
	o, err := FromEnv(map[string]string{
		EnvAutoDisconnectSeconds: "0",
		EnvConnectTimeoutMs:      "2500",
		EnvAddTimeoutMs:          "4000",
		EnvRemoteOnly:            "true",
		EnvNotAllowAddServers:    "1",
		EnvConfigPath:            "servers.yaml",
		EnvLogLevel:              "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), o.AutoDisconnect)
	assert.Equal(t, 2500*time.Millisecond, o.ConnectTimeout)
	assert.Equal(t, 4*time.Second, o.AddTimeout)
	assert.True(t, o.RemoteOnly)
	assert.False(t, o.AllowAddServers)
	assert.Equal(t, StorageFile, o.StorageKind())
	assert.Equal(t, logrus.DebugLevel, o.Level())

	o, err = FromEnv(map[string]string{EnvSQLitePath: "mcp.db", EnvConfigPath: "x.json"})
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, o.StorageKind())

	o, err = FromEnv(map[string]string{EnvSQLitePath: "mcp.db", EnvStorage: StorageMemory})
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, o.StorageKind())
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	for key, val := range map[string]string{
		EnvAutoDisconnectSeconds: "soon",
		EnvConnectTimeoutMs:      "fast",
		EnvRemoteOnly:            "maybe",
		EnvStorage:               "s3",
		EnvLogLevel:              "loud",
	} {
		_, err := FromEnv(map[string]string{key: val})
		assert.Error(t, err, key)
		if err != nil {
			assert.Contains(t, err.Error(), key)
		}
	}
}

func TestFromEnvReadsDotEnv(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(fpath, []byte("MCP_ADD_TIMEOUT_MS=1234\n"), 0o644))

	o, err := FromEnv(nil, NewDotEnv(fpath))
	require.NoError(t, err)
	assert.Equal(t, 1234*time.Millisecond, o.AddTimeout)
}
