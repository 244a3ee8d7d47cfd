package helpers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	mcpapi "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaceTimeoutReturnsResult(t *testing.T) {
	v, err := RaceTimeout(time.Second, "op", func() (int, error) { return 42, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRaceTimeoutPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := RaceTimeout(time.Second, "op", func() (int, error) { return 0, boom }, nil)
	assert.ErrorIs(t, err, boom)
}

func TestRaceTimeoutExpires(t *testing.T) {
	release := make(chan struct{})
	abandoned := make(chan int, 1)

	_, err := RaceTimeout(20*time.Millisecond, "connection", func() (int, error) {
		<-release
		return 7, nil
	}, func(v int, err error) {
		abandoned <- v
	})

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "connection timeout after 20ms", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "TimeoutError", ErrorName(err))

	close(release)
	select {
	case v := <-abandoned:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("abandon callback never ran")
	}
}

func TestRaceTimeoutDisabled(t *testing.T) {
	var calls atomic.Int32
	_, err := RaceTimeout(0, "op", func() (struct{}, error) {
		calls.Add(1)
		return struct{}{}, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

type namedErr struct{}

func (namedErr) Error() string { return "named" }
func (namedErr) Name() string  { return "ConfigurationError" }

func TestErrorName(t *testing.T) {
	assert.Equal(t, "", ErrorName(nil))
	assert.Equal(t, "Error", ErrorName(errors.New("x")))
	assert.Equal(t, "AbortError", ErrorName(context.Canceled))
	assert.Equal(t, "TimeoutError", ErrorName(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, "ConfigurationError", ErrorName(fmt.Errorf("wrapped: %w", namedErr{})))
}

func TestErrorResultEnvelope(t *testing.T) {
	res := ErrorResult(errors.New("server exploded"), 1500*time.Millisecond)
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := mcpapi.AsTextContent(res.Content[0])
	require.True(t, ok)
	assert.JSONEq(t, `{"error":{"message":"server exploded","name":"Error","executionTime":1500}}`, text.Text)

	detail, ok := ParseErrorResult(res)
	require.True(t, ok)
	assert.Equal(t, "server exploded", detail.Message)
	require.NotNil(t, detail.ExecutionTime)
	assert.Equal(t, int64(1500), *detail.ExecutionTime)
}

func TestErrorResultWithoutTiming(t *testing.T) {
	res := ErrorResult(errors.New("nope"), -1)
	assert.JSONEq(t, `{"error":{"message":"nope","name":"Error"}}`, ResultText(res))
}

func TestParseErrorResultRejectsSuccess(t *testing.T) {
	_, ok := ParseErrorResult(mcpapi.NewToolResultText("fine"))
	assert.False(t, ok)
	_, ok = ParseErrorResult(nil)
	assert.False(t, ok)
	assert.Equal(t, "fine", ResultText(mcpapi.NewToolResultText("fine")))
}
