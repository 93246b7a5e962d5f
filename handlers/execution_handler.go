package handlers

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/arteai/publish-engine/internal/monitor"
	"github.com/arteai/publish-engine/internal/resilience"
	"github.com/arteai/publish-engine/pkg/response"
)

// ExecutionHandler exposes the in-memory execution history, lifetime
// counters and circuit breaker states.
type ExecutionHandler struct {
	monitor  *monitor.Monitor
	breakers *resilience.BreakerRegistry
}

func NewExecutionHandler(mon *monitor.Monitor, breakers *resilience.BreakerRegistry) *ExecutionHandler {
	return &ExecutionHandler{
		monitor:  mon,
		breakers: breakers,
	}
}

// GetHistory godoc
// @Summary Get execution history
// @Description Returns recent publish executions, newest first
// @Tags executions
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for scheduler"
// @Param limit query int false "Max entries to return (default: 50)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/executions/history [get]
func (h *ExecutionHandler) GetHistory(c echo.Context) error {
	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			return response.BadRequest(c, fmt.Errorf("limit must be a positive integer"))
		}
		limit = l
	}

	return response.Ok(c, h.monitor.Recent(limit))
}

// GetExecutionStats godoc
// @Summary Get execution statistics
// @Description Returns lifetime execution counters and the success rate
// @Tags executions
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/executions/stats [get]
func (h *ExecutionHandler) GetExecutionStats(c echo.Context) error {
	return response.Ok(c, h.monitor.GetStats())
}

// GetBreakers godoc
// @Summary Get circuit breaker states
// @Description Returns the current state of every platform circuit breaker
// @Tags executions
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/executions/breakers [get]
func (h *ExecutionHandler) GetBreakers(c echo.Context) error {
	return response.Ok(c, h.breakers.Snapshots())
}
