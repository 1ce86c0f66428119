package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot, "internal"},
		{"invalid input", fmt.Errorf("parsing limit: %w", ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"not built", ErrIndexNotBuilt, http.StatusServiceUnavailable, "index_not_built"},
		{"empty corpus", fmt.Errorf("building: %w", ErrEmptyCorpus), http.StatusServiceUnavailable, "empty_corpus"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"timeout", fmt.Errorf("redis get: %w", ErrTimeout), http.StatusGatewayTimeout, "timeout"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
			if got := Code(tt.err); got != tt.code {
				t.Errorf("Code() = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Invalid("limit %d out of range", -1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatal("expected AppError to unwrap to its sentinel")
	}
	if got, want := err.Error(), "invalid input: limit -1 out of range"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWriteJSONHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, errors.New("dial tcp 10.0.0.3:6379: refused"), "req-1"); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError || resp.Error != "internal error" || resp.RequestID != "req-1" {
		t.Errorf("status=%d resp=%+v", rec.Code, resp)
	}

	rec = httptest.NewRecorder()
	WriteJSON(rec, Invalid("limit must be positive"), "")
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusBadRequest || resp.Error != "limit must be positive" || resp.Code != "invalid_input" {
		t.Errorf("status=%d resp=%+v", rec.Code, resp)
	}
}
