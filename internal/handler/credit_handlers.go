package handler

import (
	"net/http"

	"scenario-server/internal/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type addCreditsRequest struct {
	Amount int64 `json:"amount"`
}

type creditsResponse struct {
	Success bool  `json:"success"`
	Credits int64 `json:"credits"`
}

func (h *ScenarioHandler) getCredits(c echo.Context) error {
	balance, err := h.credits.GetCredits(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, creditsResponse{Success: true, Credits: balance})
}

// addCreditsInternal пополняет баланс. Вызывается только другими сервисами.
func (h *ScenarioHandler) addCreditsInternal(c echo.Context) error {
	var req addCreditsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	scenarioID := c.Param("id")
	balance, err := h.credits.AddCredits(c.Request().Context(), scenarioID, req.Amount)
	if err != nil {
		return handleServiceError(c, err)
	}
	source, _ := c.Get(middleware.SourceServiceKey).(string)
	h.logger.Info("Credits added",
		zap.String("scenarioID", scenarioID),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", balance),
		zap.String("sourceService", source),
	)
	return c.JSON(http.StatusOK, creditsResponse{Success: true, Credits: balance})
}
