package models

import "time"

// BatchGenerationTask - задача на пакетную генерацию, отправляемая в очередь воркеру.
type BatchGenerationTask struct {
	TaskID     string    `json:"task_id"`
	ScenarioID string    `json:"scenario_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClientUpdate event types
const (
	UpdateBatchCompleted = "batch_completed"
	UpdateBatchFailed    = "batch_failed"
	UpdateSlotCompleted  = "slot_completed"
	UpdateSlotFailed     = "slot_failed"
	UpdateGraphReady     = "graph_ready"
)

// ClientUpdate - событие для клиента (через очередь client_updates).
type ClientUpdate struct {
	Type       string       `json:"type"`
	ScenarioID string       `json:"scenario_id"`
	TaskID     string       `json:"task_id,omitempty"`
	Batch      *BatchResult `json:"batch,omitempty"`
	Slot       *SlotResult  `json:"slot,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}
