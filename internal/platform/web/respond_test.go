package web

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/pkg/errors"
)

type mockResponseWriter struct {
	header     http.Header
	StatusCode int
	buffer     bytes.Buffer
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{header: http.Header{}}
}

func (rw *mockResponseWriter) Header() http.Header {
	return rw.header
}

func (rw *mockResponseWriter) Write(b []byte) (int, error) {
	return rw.buffer.Write(b)
}

func (rw *mockResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
}

func testContext() context.Context {
	values := Values{
		TraceID: "test",
		Now:     time.Now(),
	}
	return context.WithValue(context.Background(), KeyValues, &values)
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", fault.Validation("bad"), http.StatusBadRequest},
		{"not found", fault.NotFound("missing"), http.StatusNotFound},
		{"forbidden", fault.Forbidden("no"), http.StatusForbidden},
		{"conflict", fault.Conflict("dup"), http.StatusConflict},
		{"state", fault.State("wrong state"), http.StatusConflict},
		{"external", fault.External("node down"), http.StatusBadGateway},
		{"wrapped keeps kind", errors.Wrap(fault.Forbidden("no"), "fetch"), http.StatusForbidden},
		{"db not found", db.ErrNotFound, http.StatusNotFound},
		{"wrapped db not found", errors.Wrap(db.ErrNotFound, "fetch wallet"), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newMockResponseWriter()
			ctx := testContext()

			Error(ctx, w, tt.err)

			if w.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", w.StatusCode, tt.status)
			}
		})
	}
}

func TestRespondRecordsStatus(t *testing.T) {
	w := newMockResponseWriter()
	ctx := testContext()

	Respond(ctx, w, map[string]string{"status": "ok"}, http.StatusCreated)

	if w.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.StatusCode, http.StatusCreated)
	}

	v, ok := ctx.Value(KeyValues).(*Values)
	if !ok {
		t.Fatalf("missing context values")
	}
	if v.StatusCode != http.StatusCreated {
		t.Fatalf("context status = %d, want %d", v.StatusCode, http.StatusCreated)
	}
}
