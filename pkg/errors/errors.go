// Package errors holds the sentinel errors shared by the engine and the
// HTTP services, and maps them onto status codes and JSON error bodies.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCorpusIO      = errors.New("corpus i/o failure")
	ErrEmptyCorpus   = errors.New("corpus contains no documents")
	ErrIndexNotBuilt = errors.New("index not built")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCacheDisabled = errors.New("query cache disabled")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

var codes = []struct {
	err    error
	code   string
	status int
}{
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrRateLimited, "rate_limited", http.StatusTooManyRequests},
	{ErrIndexNotBuilt, "index_not_built", http.StatusServiceUnavailable},
	{ErrEmptyCorpus, "empty_corpus", http.StatusServiceUnavailable},
	{ErrCacheDisabled, "cache_disabled", http.StatusServiceUnavailable},
	{ErrTimeout, "timeout", http.StatusGatewayTimeout},
	{ErrCorpusIO, "corpus_io", http.StatusInternalServerError},
}

// AppError attaches a client-facing message and status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Invalid is shorthand for a 400 carrying ErrInvalidInput.
func Invalid(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns a stable machine-readable name for err.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// Response is the JSON body of every error reply.
type Response struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ResponseFor builds the client view of err. 5xx errors that are not
// AppErrors are reported without detail.
func ResponseFor(err error) (int, Response) {
	status := HTTPStatusCode(err)
	resp := Response{Error: err.Error(), Code: Code(err)}
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		resp.Error = appErr.Message
	case status >= http.StatusInternalServerError && resp.Code == "internal":
		resp.Error = ErrInternal.Error()
	}
	return status, resp
}

// WriteJSON writes err as a JSON error reply.
func WriteJSON(w http.ResponseWriter, err error, requestID string) error {
	status, resp := ResponseFor(err)
	resp.RequestID = requestID
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}
