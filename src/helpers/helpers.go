package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpapi "github.com/mark3labs/mcp-go/mcp"

	"github.com/mcp-chatbot/mcp-manager/src/json"
)

// TimeoutError reports that an operation lost its race against a ceiling.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout after %dms", e.Op, e.After.Milliseconds())
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match timeouts.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Name is used for the "name" field of error results.
func (e *TimeoutError) Name() string { return "TimeoutError" }

// RaceTimeout runs fn and returns its outcome, or a *TimeoutError once
// timeout elapses first. The losing fn keeps running; when it eventually
// finishes its outcome is passed to abandon (if non-nil) so that resources
// it produced can be released. A non-positive timeout disables the race.
func RaceTimeout[T any](timeout time.Duration, op string, fn func() (T, error), abandon func(T, error)) (T, error) {
	if timeout <= 0 {
		return fn()
	}

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome)
	lost := make(chan struct{})
	go func() {
		val, err := fn()
		select {
		case ch <- outcome{val, err}:
		case <-lost:
			if abandon != nil {
				abandon(val, err)
			}
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case o := <-ch:
		return o.val, o.err
	case <-timer.C:
		close(lost)
		// fn may have finished in the same instant.
		select {
		case o := <-ch:
			return o.val, o.err
		default:
		}
		var zero T
		return zero, &TimeoutError{Op: op, After: timeout}
	}
}

// ErrorName classifies err for the "name" field of error results.
func ErrorName(err error) string {
	var named interface{ Name() string }
	switch {
	case err == nil:
		return ""
	case errors.As(err, &named):
		return named.Name()
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	case errors.Is(err, context.Canceled):
		return "AbortError"
	default:
		return "Error"
	}
}

// ErrorPayload is the body carried in the text of an error result.
type ErrorPayload struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message       string `json:"message"`
	Name          string `json:"name"`
	ExecutionTime *int64 `json:"executionTime,omitempty"`
}

// ErrorResult wraps err in the uniform error envelope: a single text item
// holding {"error":{"message","name","executionTime"}}. A negative elapsed
// omits executionTime.
func ErrorResult(err error, elapsed time.Duration) *mcpapi.CallToolResult {
	detail := ErrorDetail{Message: err.Error(), Name: ErrorName(err)}
	if elapsed >= 0 {
		ms := elapsed.Milliseconds()
		detail.ExecutionTime = &ms
	}
	body, mErr := json.Marshal(ErrorPayload{Error: detail})
	if mErr != nil {
		body = []byte(fmt.Sprintf(`{"error":{"message":%q,"name":"Error"}}`, err.Error()))
	}
	return &mcpapi.CallToolResult{
		Content: []mcpapi.Content{mcpapi.NewTextContent(string(body))},
		IsError: true,
	}
}

// ParseErrorResult extracts the payload from a result built by ErrorResult.
func ParseErrorResult(res *mcpapi.CallToolResult) (ErrorDetail, bool) {
	if res == nil || !res.IsError || len(res.Content) == 0 {
		return ErrorDetail{}, false
	}
	text, ok := mcpapi.AsTextContent(res.Content[0])
	if !ok {
		return ErrorDetail{}, false
	}
	var payload ErrorPayload
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		return ErrorDetail{}, false
	}
	return payload.Error, true
}

// ResultText returns the text of the first text item in res, or "".
func ResultText(res *mcpapi.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Content {
		if text, ok := mcpapi.AsTextContent(c); ok {
			return text.Text
		}
	}
	return ""
}
