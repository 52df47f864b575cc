package handler

import (
	"errors"
	"net/http"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/middleware"
	"scenario-server/internal/models"
	"scenario-server/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIError - тело ответа при ошибке.
type APIError struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error"`
	ErrorKind models.ErrorKind `json:"errorKind"`
}

// ScenarioHandler обрабатывает HTTP запросы scenario-server.
type ScenarioHandler struct {
	scenarios *service.ScenarioService
	credits   *service.CreditService
	batch     *service.BatchAssetOrchestrator
	assets    *service.AssetGenerator
	tasks     interfaces.TaskPublisher
	// nil - маршруты /internal не регистрируются
	interServiceVerifier *middleware.InterServiceVerifier
	logger               *zap.Logger
}

func NewScenarioHandler(
	scenarios *service.ScenarioService,
	credits *service.CreditService,
	batch *service.BatchAssetOrchestrator,
	assets *service.AssetGenerator,
	tasks interfaces.TaskPublisher,
	interServiceVerifier *middleware.InterServiceVerifier,
	logger *zap.Logger,
) *ScenarioHandler {
	return &ScenarioHandler{
		scenarios:            scenarios,
		credits:              credits,
		batch:                batch,
		assets:               assets,
		tasks:                tasks,
		interServiceVerifier: interServiceVerifier,
		logger:               logger.Named("ScenarioHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API.
func (h *ScenarioHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)

	scenarios := e.Group("/scenarios")
	{
		scenarios.POST("", h.createScenario)
		scenarios.GET("", h.listScenarios)
		scenarios.GET("/:id", h.getScenario)
		scenarios.PUT("/:id/start-image", h.setStartImage)
		scenarios.POST("/:id/graph", h.generateGraph)
		scenarios.POST("/:id/select-path", h.selectPath)
		scenarios.POST("/:id/videos", h.generateAllVideos)
		scenarios.POST("/:id/nodes/:nodeId/video", h.generateNodeVideo)
		scenarios.POST("/:id/idle-video", h.generateIdleVideo)
		scenarios.GET("/:id/slots", h.listInFlightSlots)
		scenarios.GET("/:id/credits", h.getCredits)
	}

	if h.interServiceVerifier == nil {
		h.logger.Warn("Inter-service secret is not set, /internal routes are disabled")
		return
	}
	internal := e.Group("/internal", middleware.InterServiceAuth(h.interServiceVerifier, h.logger))
	{
		internal.POST("/scenarios/:id/credits", h.addCreditsInternal)
	}
}

func (h *ScenarioHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// statusForKind - HTTP статус для вида ошибки.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindGraphNotFound, models.KindNodeNotFound:
		return http.StatusNotFound
	case models.KindAllSlotsBusy, models.KindSlotBusy:
		return http.StatusConflict
	case models.KindInsufficientCredits:
		return http.StatusPaymentRequired
	case models.KindValidation, models.KindReferentialIntegrity, models.KindInvalidSelection, models.KindMissingStartImage:
		return http.StatusUnprocessableEntity
	case models.KindGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func handleServiceError(c echo.Context, err error) error {
	kind := models.KindOf(err)
	status := statusForKind(kind)
	msg := err.Error()

	switch {
	case errors.Is(err, models.ErrOracleFailed):
		// внешний сервис недоступен, выбор не был сделан
		status = http.StatusBadGateway
	case errors.Is(err, models.ErrConcurrentUpdate):
		status = http.StatusConflict
	case kind == models.KindInternal:
		msg = "Internal server error"
	}
	return c.JSON(status, APIError{Success: false, Error: msg, ErrorKind: kind})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, APIError{Success: false, Error: msg, ErrorKind: models.KindValidation})
}
