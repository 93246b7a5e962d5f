package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/arteai/publish-engine/pkg/response"
	validatorpkg "github.com/arteai/publish-engine/pkg/validator"
)

// TestCreatePost_BadJSON verifies that invalid JSON returns 400 Bad Request.
func TestCreatePost_BadJSON(t *testing.T) {
	e := echo.New()
	// Validator is not needed here because Bind will fail before Validate is called.
	handler := NewPostHandler(nil)

	reqBody := `{"title": "Launch", "caption":`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreatePost(c); err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	var resp response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected Success=false, got true")
	}
}

// TestCreatePost_MissingTargets verifies that validation failure returns 422.
func TestCreatePost_MissingTargets(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	// service is nil on purpose; validation fails before the service is called.
	handler := NewPostHandler(nil)

	reqBody := `{"title": "Launch", "caption": "hello", "targets": []}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreatePost(c); err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

// TestGetPost_InvalidID verifies that a non-numeric id returns 400.
func TestGetPost_InvalidID(t *testing.T) {
	e := echo.New()
	handler := NewPostHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := handler.GetPost(c); err != nil {
		t.Fatalf("GetPost returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// TestGetPosts_InvalidPagination verifies pagination parameter validation.
func TestGetPosts_InvalidPagination(t *testing.T) {
	e := echo.New()
	handler := NewPostHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts?page=0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.GetPosts(c); err != nil {
		t.Fatalf("GetPosts returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
