package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoverMiddleware(t *testing.T) {
	h := TracingMiddleware(RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["trace_id"] == "" || body["trace_id"] != rr.Header().Get(TraceIDHeader) {
		t.Errorf("expected trace id %q in body, got %v", rr.Header().Get(TraceIDHeader), body)
	}
	if rr.Header().Get(RequestIDHeader) != "req-123" {
		t.Errorf("expected caller request id to be kept, got %q", rr.Header().Get(RequestIDHeader))
	}
}

func TestResponseWriterRecords(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusTeapot)
	rw.Write([]byte("hello"))
	rw.Write([]byte(" world"))

	if rw.statusCode != http.StatusTeapot || rw.bytes != 11 {
		t.Errorf("expected 418 and 11 bytes, got %d and %d", rw.statusCode, rw.bytes)
	}

	t.Run("DefaultsToOK", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())
		rw.Write([]byte("{}"))
		if rw.statusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", rw.statusCode)
		}
	})
}

func TestWriteErrorMasksInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set(TraceIDHeader, "trace-abc")
	writeError(rr, errors.New("database is on fire"))

	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if rr.Code != http.StatusInternalServerError || body["error"] != "internal server error" || body["trace_id"] != "trace-abc" {
		t.Errorf("unexpected masked error %d %v", rr.Code, body)
	}
}
