package handlers

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/arteai/publish-engine/internal/service"
	"github.com/arteai/publish-engine/pkg/response"
	"github.com/arteai/publish-engine/pkg/validator"
)

type PostHandler struct {
	service *service.PostService
}

func NewPostHandler(service *service.PostService) *PostHandler {
	return &PostHandler{service: service}
}

// CreatePost godoc
// @Summary Create a scheduled post
// @Description Creates a post with one publish target per platform; WhatsApp targets require reviewer approval
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Param post body service.CreatePostInput true "Post to schedule"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts [post]
func (h *PostHandler) CreatePost(c echo.Context) error {
	var req service.CreatePostInput
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	post, err := h.service.CreatePost(c.Request().Context(), req)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.Created(c, "Post scheduled successfully", post)
}

// GetPosts godoc
// @Summary List posts
// @Description Retrieves a paginated list of posts with their publish targets
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts [get]
func (h *PostHandler) GetPosts(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	posts, totalCount, err := h.service.GetPosts(c.Request().Context(), page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, posts, page, pageSize, totalCount)
}

// GetPost godoc
// @Summary Get a post
// @Description Retrieves one post with its publish targets
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Param id path int true "Post ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts/{id} [get]
func (h *PostHandler) GetPost(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	post, err := h.service.GetPost(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if post == nil {
		return response.BadRequest(c, fmt.Errorf("no post found with id %d", id))
	}

	return response.Ok(c, post)
}

// CancelPost godoc
// @Summary Cancel a post
// @Description Cancels every target of the post that has not yet been published
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Param id path int true "Post ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts/{id}/cancel [post]
func (h *PostHandler) CancelPost(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	cancelled, err := h.service.CancelPost(c.Request().Context(), id)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, map[string]any{
		"cancelled": cancelled,
	})
}

// GetStats godoc
// @Summary Get publish target statistics
// @Description Returns count of publish targets by status
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts/stats [get]
func (h *PostHandler) GetStats(c echo.Context) error {
	stats, err := h.service.GetStats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, stats)
}

// GetCachedPublications godoc
// @Summary Get cached publications from Redis
// @Description Returns recently published targets cached in Redis
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts/cached [get]
func (h *PostHandler) GetCachedPublications(c echo.Context) error {
	cached, err := h.service.GetCachedPublications(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, cached)
}

// ReplayAllFailedTargets godoc
// @Summary Replay all failed targets
// @Description Resets every failed target to pending so the scheduler retries them
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts/targets/replay [post]
func (h *PostHandler) ReplayAllFailedTargets(c echo.Context) error {
	count, err := h.service.ReplayAllFailed(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"replayed": count,
	})
}

// ReplayFailedTarget godoc
// @Summary Replay a single failed target
// @Description Resets a specific failed target to pending so the scheduler retries it
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Param id path int true "Target ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts/targets/{id}/replay [post]
func (h *PostHandler) ReplayFailedTarget(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	if err := h.service.ReplayTarget(c.Request().Context(), id); err != nil {
		// "no failed target found" maps to a 400 to avoid adding a NotFound helper.
		return response.BadRequest(c, err)
	}

	return response.Ok(c, map[string]any{
		"replayed": 1,
	})
}

// RequestApproval godoc
// @Summary Re-send an approval request
// @Description Sends the reviewer another approval prompt for a target awaiting approval
// @Tags posts
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for posts"
// @Param id path int true "Target ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/posts/targets/{id}/approval [post]
func (h *PostHandler) RequestApproval(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	if err := h.service.RequestApproval(c.Request().Context(), id); err != nil {
		return response.BadRequest(c, err)
	}

	return response.OkWithMessage(c, "Approval request sent", nil)
}

func parseIDParam(c echo.Context) (int64, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	// Page
	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	// Page size
	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
