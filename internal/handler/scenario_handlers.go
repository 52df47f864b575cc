package handler

import (
	"net/http"

	"scenario-server/internal/models"
	"scenario-server/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type createScenarioRequest struct {
	Prompt        string `json:"prompt"`
	StartImageURL string `json:"startImageUrl"`
}

type generateGraphRequest struct {
	Prompt string `json:"prompt"`
}

type setStartImageRequest struct {
	StartImageURL string `json:"startImageUrl"`
}

type graphResponse struct {
	Success bool          `json:"success"`
	Graph   *models.Graph `json:"graph"`
}

type selectPathResponse struct {
	Success bool `json:"success"`
	*models.SelectionResult
}

func (h *ScenarioHandler) createScenario(c echo.Context) error {
	var req createScenarioRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	g, err := h.scenarios.CreateScenario(c.Request().Context(), req.Prompt, req.StartImageURL)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, graphResponse{Success: true, Graph: g})
}

func (h *ScenarioHandler) listScenarios(c echo.Context) error {
	graphs, err := h.scenarios.ListScenarios(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list scenarios", zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "scenarios": graphs})
}

func (h *ScenarioHandler) getScenario(c echo.Context) error {
	g, err := h.scenarios.GetScenario(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, graphResponse{Success: true, Graph: g})
}

func (h *ScenarioHandler) setStartImage(c echo.Context) error {
	var req setStartImageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	g, err := h.scenarios.SetStartImage(c.Request().Context(), c.Param("id"), req.StartImageURL)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, graphResponse{Success: true, Graph: g})
}

func (h *ScenarioHandler) generateGraph(c echo.Context) error {
	var req generateGraphRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	g, err := h.scenarios.GenerateGraph(c.Request().Context(), c.Param("id"), req.Prompt)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, graphResponse{Success: true, Graph: g})
}

func (h *ScenarioHandler) selectPath(c echo.Context) error {
	var in service.SelectPathInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if in.CurrentNodeID == "" {
		return badRequest(c, "nodeId is required")
	}
	res, err := h.scenarios.SelectPath(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, selectPathResponse{Success: true, SelectionResult: res})
}

func (h *ScenarioHandler) listInFlightSlots(c echo.Context) error {
	slots, err := h.scenarios.InFlightSlots(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "slots": slots})
}
