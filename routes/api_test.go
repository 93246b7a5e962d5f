package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/handlers"
)

func newTestServer() *echo.Echo {
	e := echo.New()

	cfg := &environments.Config{
		Auth: environments.AuthConfig{
			PostsAPIKey:     "posts-key",
			SchedulerAPIKey: "sched-key",
		},
	}

	// Handlers that no webhook test reaches can stay unwired.
	RegisterRoutes(e,
		handlers.NewHealthHandler(nil, nil),
		handlers.NewPostHandler(nil),
		handlers.NewWebhookHandler(nil, "secret-token"),
		handlers.NewSchedulerHandler(nil, context.Background()),
		handlers.NewExecutionHandler(nil, nil),
		cfg,
	)

	return e
}

// The Cloud API is configured with /webhook, so the handshake must
// resolve there and not only on the /webhook/whatsapp alias.
func TestWebhookVerify_ServedAtWebhookPath(t *testing.T) {
	e := newTestServer()

	for _, path := range []string{"/webhook", "/webhook/whatsapp"} {
		req := httptest.NewRequest(http.MethodGet,
			path+"?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=abc123", nil)
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, rec.Code)
		}
		if rec.Body.String() != "abc123" {
			t.Fatalf("%s: expected challenge echoed back, got %q", path, rec.Body.String())
		}
	}
}

func TestWebhookReceive_ServedAtWebhookPath(t *testing.T) {
	e := newTestServer()

	for _, path := range []string{"/webhook", "/webhook/whatsapp"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"entry": []}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, rec.Code)
		}
	}
}

func TestPostsRoutes_RequireAPIKey(t *testing.T) {
	e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d without api key, got %d", http.StatusUnauthorized, rec.Code)
	}
}
