package mcp

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	mcpapi "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-chatbot/mcp-manager/internal/mcptest"
	. "github.com/mcp-chatbot/mcp-manager/src/providers/base"
	. "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
	"github.com/mcp-chatbot/mcp-manager/src/helpers"
	"github.com/mcp-chatbot/mcp-manager/src/tools"
)

func TestMain(m *testing.M) {
	mcptest.MaybeServeStdio()
	os.Exit(m.Run())
}

type stubSession struct{ kind TransportKind }

func (s *stubSession) ListTools(ctx context.Context) ([]tools.Tool, error) { return nil, nil }
func (s *stubSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcpapi.CallToolResult, error) {
	return nil, nil
}
func (s *stubSession) Transport() TransportKind { return s.kind }
func (s *stubSession) Close() error             { return nil }

func TestDialFallsBackToSSE(t *testing.T) {
	var order []string
	tr := NewMCPTransport(nil,
		WithStreamableConnector(func(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
			order = append(order, "streamable")
			return nil, errors.New("405 method not allowed")
		}),
		WithSSEConnector(func(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
			order = append(order, "sse")
			assert.Equal(t, "secret", cfg.Headers["Authorization"])
			return &stubSession{kind: TransportSSE}, nil
		}),
	)

	cfg := NewRemoteServerConfig("http://example.test/mcp").WithHeader("Authorization", "secret")
	sess, err := tr.Dial(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, TransportSSE, sess.Transport())
	assert.Equal(t, []string{"streamable", "sse"}, order)
}

func TestDialStreamableSkipsSSE(t *testing.T) {
	sseCalled := false
	tr := NewMCPTransport(nil,
		WithStreamableConnector(func(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
			return &stubSession{kind: TransportStreamable}, nil
		}),
		WithSSEConnector(func(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
			sseCalled = true
			return nil, errors.New("unexpected")
		}),
	)
	sess, err := tr.Dial(context.Background(), NewRemoteServerConfig("http://example.test/mcp"))
	require.NoError(t, err)
	assert.Equal(t, TransportStreamable, sess.Transport())
	assert.False(t, sseCalled)
}

func TestDialBothRemoteTransportsFail(t *testing.T) {
	sseErr := errors.New("sse refused")
	tr := NewMCPTransport(nil,
		WithStreamableConnector(func(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
			return nil, errors.New("streamable refused")
		}),
		WithSSEConnector(func(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
			return nil, sseErr
		}),
	)
	_, err := tr.Dial(context.Background(), NewRemoteServerConfig("http://example.test/mcp"))
	require.Error(t, err)
	assert.ErrorIs(t, err, sseErr)
	assert.Contains(t, err.Error(), "streamable refused")
}

func TestDialRejectsStdioWhenRemoteOnly(t *testing.T) {
	tr := NewMCPTransport(nil, WithRemoteOnly(true),
		WithStdioConnector(func(ctx context.Context, cfg *StdioServerConfig) (Session, error) {
			t.Fatal("stdio connector must not run")
			return nil, nil
		}),
	)
	_, err := tr.Dial(context.Background(), NewStdioServerConfig("node", "server.js"))
	assert.ErrorIs(t, err, ErrStdioDisabled)
	assert.True(t, IsConfigError(err))
}

func TestDialRejectsInvalidConfig(t *testing.T) {
	tr := NewMCPTransport(nil)
	_, err := tr.Dial(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = tr.Dial(context.Background(), NewRemoteServerConfig("ftp://example.test"))
	assert.True(t, IsConfigError(err))

	_, err = tr.Dial(context.Background(), NewStdioServerConfig(""))
	assert.True(t, IsConfigError(err))
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root", "broken", "=nokey", "PATH=/dup"}
	got := MergeEnv(base, map[string]string{"HOME": "/tmp", "ZED": "z", "API_KEY": "k"})
	assert.Equal(t, []string{"PATH=/usr/bin", "HOME=/tmp", "API_KEY=k", "ZED=z"}, got)

	assert.Equal(t, []string{"A=1"}, MergeEnv([]string{"A=1"}, nil))
}

func TestStreamableHTTPRoundTrip(t *testing.T) {
	url := mcptest.StartStreamable(t, mcptest.NewServer("demo"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := NewMCPTransport(nil).Dial(ctx, NewRemoteServerConfig(url))
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, TransportStreamable, sess.Transport())

	list, err := sess.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, tl := range list {
		names = append(names, tl.Name)
	}
	assert.ElementsMatch(t, []string{"echo", "fail", "sleep"}, names)

	res, err := sess.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "hi", helpers.ResultText(res))
}

func TestSSEFallbackAgainstLegacyServer(t *testing.T) {
	url := mcptest.StartSSE(t, mcptest.NewServer("legacy"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := NewMCPTransport(nil).Dial(ctx, NewRemoteServerConfig(url))
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, TransportSSE, sess.Transport())

	res, err := sess.CallTool(ctx, "echo", map[string]any{"text": "legacy"})
	require.NoError(t, err)
	assert.Equal(t, "legacy", helpers.ResultText(res))
}

func TestStdioRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := NewMCPTransport(nil).Dial(ctx, mcptest.StdioConfig(mcptest.ModeServe))
	require.NoError(t, err)
	assert.Equal(t, TransportStdio, sess.Transport())

	list, err := sess.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	res, err := sess.CallTool(ctx, "fail", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	first := sess.Close()
	assert.Equal(t, first, sess.Close())
}

func TestStdioHandshakeHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewMCPTransport(nil).Dial(ctx, mcptest.StdioConfig(mcptest.ModeSilent))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
