package models

import "errors"

// ErrorKind - машиночитаемый вид ошибки, по которому клиент строит UI (например, "купить кредиты").
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindReferentialIntegrity ErrorKind = "referential_integrity"
	KindNodeNotFound         ErrorKind = "node_not_found"
	KindInvalidSelection     ErrorKind = "invalid_selection"
	KindGraphNotFound        ErrorKind = "graph_not_found"
	KindAllSlotsBusy         ErrorKind = "all_slots_busy"
	KindSlotBusy             ErrorKind = "slot_busy"
	KindInsufficientCredits  ErrorKind = "insufficient_credits"
	KindGenerationFailed     ErrorKind = "generation_failed"
	KindMissingStartImage    ErrorKind = "missing_start_image"
	KindPersistFailed        ErrorKind = "persist_failed"
	KindInternal             ErrorKind = "internal"
)

// KindOf сопоставляет ошибку и ее вид. Порядок важен: более конкретные ошибки проверяются первыми.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientCredits):
		return KindInsufficientCredits
	case errors.Is(err, ErrAllSlotsBusy):
		return KindAllSlotsBusy
	case errors.Is(err, ErrSlotBusy):
		return KindSlotBusy
	case errors.Is(err, ErrGraphNotFound):
		return KindGraphNotFound
	case errors.Is(err, ErrNodeNotFound):
		return KindNodeNotFound
	case errors.Is(err, ErrInvalidSelection), errors.Is(err, ErrOracleFailed):
		return KindInvalidSelection
	case errors.Is(err, ErrReferentialIntegrity):
		return KindReferentialIntegrity
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrMissingStartImage):
		return KindMissingStartImage
	case errors.Is(err, ErrPersistFailed):
		return KindPersistFailed
	case errors.Is(err, ErrGenerationFailed):
		return KindGenerationFailed
	default:
		return KindInternal
	}
}

// SelectionResult - успешный результат выбора пути.
type SelectionResult struct {
	NextNode       Node   `json:"nextNode"`
	SelectedOption Option `json:"selectedOption"`
	UsedFallback   bool   `json:"usedFallback,omitempty"`
}

// BatchResult - структурированный результат пакетной генерации.
// Success=false всегда сопровождается Error и ErrorKind.
type BatchResult struct {
	Success        bool      `json:"success"`
	NodesGenerated int       `json:"nodesGenerated"`
	IdleGenerated  bool      `json:"idleGenerated"`
	SkippedSlots   []string  `json:"skippedSlots,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"errorKind,omitempty"`
	FailedSlot     string    `json:"failedSlot,omitempty"`
	Required       int64     `json:"required,omitempty"`
	Available      int64     `json:"available,omitempty"`
}

// SlotResult - результат генерации одного слота.
type SlotResult struct {
	Success   bool      `json:"success"`
	SlotKey   string    `json:"slotKey"`
	AssetURL  string    `json:"assetUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
}

// NodeAssetsResult - результат генерации ассетов одного узла (основное видео + idle для нетерминальных).
type NodeAssetsResult struct {
	Success bool        `json:"success"`
	Main    SlotResult  `json:"main"`
	Idle    *SlotResult `json:"idle,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    ErrorKind   `json:"errorKind,omitempty"`
}
