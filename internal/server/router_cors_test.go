package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRouterAnswersPreflightRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newRouterFixture(t, &scriptedProvider{})

	request := httptest.NewRequest(http.MethodOptions, "/auth/signup", http.NoBody)
	request.Header.Set("Origin", "https://app.roam.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	recorder := httptest.NewRecorder()

	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent && recorder.Code != http.StatusOK {
		t.Fatalf("unexpected preflight status %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected CORS allow-origin header, got %v", recorder.Header())
	}
}
