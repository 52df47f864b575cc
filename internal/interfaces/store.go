package interfaces

import (
	"context"

	"scenario-server/internal/models"
)

// CreditLedger - атомарный целочисленный баланс кредитов сценария.
// Неотрицательность баланса ледгер НЕ проверяет: вызывающий сначала сверяет баланс,
// затем списывает, а при неудаче операции возвращает списанное.
type CreditLedger interface {
	// GetBalance возвращает текущий баланс. Отсутствующий ключ читается как 0.
	GetBalance(ctx context.Context, scenarioID string) (int64, error)
	// Adjust атомарно прибавляет delta (может быть отрицательной) и возвращает новый баланс.
	Adjust(ctx context.Context, scenarioID string, delta int64) (int64, error)
}

// SlotRegistry - множество "слотов в работе" сценария с семантикой claim/release.
// Каждый claim принадлежит владельцу с токеном; отпустить или продлить слот может только он.
type SlotRegistry interface {
	// Claim атомарно добавляет slotKey с токеном владельца. true - слот теперь наш, false - слот уже занят.
	Claim(ctx context.Context, scenarioID, slotKey, token string) (bool, error)
	// Refresh продлевает claim владельца (heartbeat). false - слот освобожден или перехвачен.
	Refresh(ctx context.Context, scenarioID, slotKey, token string) (bool, error)
	// Release удаляет slotKey, если он все еще принадлежит token. Иначе и повторно - no-op.
	Release(ctx context.Context, scenarioID, slotKey, token string) error
	// ListInFlight возвращает текущие слоты (отсортированы). Только для отображения.
	ListInFlight(ctx context.Context, scenarioID string) ([]string, error)
}

// GraphUpdateFunc изменяет свежезагруженный граф перед сохранением.
type GraphUpdateFunc func(g *models.Graph) error

// GraphStore хранит граф сценария целиком (JSON-форма графа совпадает с форматом хранения).
type GraphStore interface {
	// Load returns models.ErrGraphNotFound when the scenario has no graph.
	Load(ctx context.Context, scenarioID string) (*models.Graph, error)
	Save(ctx context.Context, scenarioID string, g *models.Graph) error
	// Update перечитывает граф, применяет fn и сохраняет с проверкой версии.
	// При конкурентной записи операция повторяется; models.ErrConcurrentUpdate
	// возвращается, если попытки исчерпаны.
	Update(ctx context.Context, scenarioID string, fn GraphUpdateFunc) (*models.Graph, error)
	List(ctx context.Context) ([]*models.Graph, error)
}
