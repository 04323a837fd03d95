package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDMiddlewarePreservesCallerID(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "upstream-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "upstream-42" {
		t.Fatalf("caller id not propagated, got %q", seen)
	}
	if got := rec.Header().Get(requestIDHeader); got != "upstream-42" {
		t.Fatalf("caller id not echoed, got %q", got)
	}
}

func TestRequestIDMiddlewareMintsWhenMissing(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id header")
	}
}

func TestDocumentIDFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/v1/documents/doc-1", "doc-1"},
		{"/v1/documents/doc-1/modules/vitals/rerun", "doc-1"},
		{"/v1/documents", ""},
		{"/v1/taxonomy/smoking/rebuild", ""},
		{"/healthz", ""},
	}
	for _, tc := range cases {
		if got := documentIDFromPath(tc.path); got != tc.want {
			t.Fatalf("documentIDFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
