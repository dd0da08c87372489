package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSAllowsCrossOriginPreflight(t *testing.T) {
	rig := newTestRig(t)

	request := httptest.NewRequest(http.MethodOptions, "/memory_webhook", http.NoBody)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)

	recorder := httptest.NewRecorder()
	rig.router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}

	allowOrigin := recorder.Header().Get("Access-Control-Allow-Origin")
	if allowOrigin != "*" {
		t.Fatalf("expected wildcard origin, got %q", allowOrigin)
	}
}
