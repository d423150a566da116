package llm

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// UpstreamError is an error reported by the model service, either as a
// non-2xx response body or as an exception frame inside a stream
// (StatusCode 0).
type UpstreamError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("upstream error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Type != "" {
		b.WriteString(": ")
		b.WriteString(e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Throttled reports whether the service asked the caller to slow down.
func (e *UpstreamError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		strings.EqualFold(e.Type, "ThrottlingException")
}

// ErrorAccumulator collects the body of a failed response, which may be
// delivered over several reads, until it holds a complete JSON object.
type ErrorAccumulator struct {
	statusCode int
	errorType  string
	buf        bytes.Buffer
}

// NewErrorAccumulator starts collecting an error body. errorType is the
// value of the x-amzn-ErrorType response header, if any.
func NewErrorAccumulator(statusCode int, errorType string) *ErrorAccumulator {
	return &ErrorAccumulator{
		statusCode: statusCode,
		errorType:  cleanErrorType(errorType),
	}
}

// Feed appends b and returns the error once the collected bytes contain a
// parseable JSON object.
func (a *ErrorAccumulator) Feed(b []byte) (*UpstreamError, bool) {
	a.buf.Write(b)

	span, ok := objectSpan(a.buf.Bytes())
	if !ok || !gjson.ValidBytes(span) {
		return nil, false
	}
	return a.build(gjson.ParseBytes(span)), true
}

// Finish returns the error for whatever was collected when the body ended
// without ever forming a JSON object.
func (a *ErrorAccumulator) Finish() *UpstreamError {
	if span, ok := objectSpan(a.buf.Bytes()); ok && gjson.ValidBytes(span) {
		return a.build(gjson.ParseBytes(span))
	}

	msg := strings.TrimSpace(a.buf.String())
	if msg == "" {
		msg = http.StatusText(a.statusCode)
	}
	return &UpstreamError{
		StatusCode: a.statusCode,
		Type:       a.errorType,
		Message:    msg,
	}
}

// Len is the number of body bytes collected so far.
func (a *ErrorAccumulator) Len() int {
	return a.buf.Len()
}

func (a *ErrorAccumulator) build(body gjson.Result) *UpstreamError {
	errType := a.errorType
	if errType == "" {
		errType = cleanErrorType(firstString(body, "__type", "error.type", "type"))
	}
	return &UpstreamError{
		StatusCode: a.statusCode,
		Type:       errType,
		Message:    firstString(body, "message", "Message", "error.message"),
	}
}

// exceptionFromFrame builds the error for an in-stream exception frame.
func exceptionFromFrame(exceptionType, headerMessage string, payload []byte) *UpstreamError {
	message := headerMessage
	if span, ok := objectSpan(payload); ok && gjson.ValidBytes(span) {
		if m := firstString(gjson.ParseBytes(span), "message", "Message"); m != "" {
			message = m
		}
	} else if message == "" {
		message = strings.TrimSpace(string(payload))
	}
	return &UpstreamError{Type: exceptionType, Message: message}
}

func firstString(body gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := body.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// cleanErrorType strips the namespace and URI decorations AWS puts around
// error codes, e.g. "com.amazon#ValidationException:http://internal/" to
// "ValidationException".
func cleanErrorType(t string) string {
	if i := strings.Index(t, ":"); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndex(t, "#"); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSpace(t)
}
