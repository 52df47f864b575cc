package handler

import (
	"net/http"
	"strconv"
	"time"

	"scenario-server/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type asyncBatchResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId"`
}

// generateAllVideos - пакетная генерация. ?async=true ставит задачу в очередь и отвечает 202.
func (h *ScenarioHandler) generateAllVideos(c echo.Context) error {
	scenarioID := c.Param("id")
	async := false
	if v := c.QueryParam("async"); v != "" {
		var err error
		if async, err = strconv.ParseBool(v); err != nil {
			return badRequest(c, "async must be a boolean")
		}
	}

	if !async {
		res := h.batch.GenerateAll(c.Request().Context(), scenarioID)
		return c.JSON(batchStatus(res), res)
	}

	task := models.BatchGenerationTask{
		TaskID:     uuid.New().String(),
		ScenarioID: scenarioID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.tasks.PublishBatchTask(c.Request().Context(), task); err != nil {
		h.logger.Error("Failed to enqueue batch task", zap.String("scenarioID", scenarioID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, APIError{
			Success:   false,
			Error:     "Failed to enqueue batch generation",
			ErrorKind: models.KindInternal,
		})
	}
	return c.JSON(http.StatusAccepted, asyncBatchResponse{Success: true, TaskID: task.TaskID})
}

func (h *ScenarioHandler) generateNodeVideo(c echo.Context) error {
	res := h.assets.GenerateNodeAssets(c.Request().Context(), c.Param("id"), c.Param("nodeId"))
	status := http.StatusOK
	if !res.Success {
		status = statusForKind(res.Kind)
	}
	return c.JSON(status, res)
}

func (h *ScenarioHandler) generateIdleVideo(c echo.Context) error {
	res := h.assets.GenerateSlot(c.Request().Context(), c.Param("id"), models.IdleSlotKey)
	status := http.StatusOK
	if !res.Success {
		status = statusForKind(res.ErrorKind)
	}
	return c.JSON(status, res)
}

func batchStatus(res models.BatchResult) int {
	if res.Success {
		return http.StatusOK
	}
	return statusForKind(res.ErrorKind)
}
