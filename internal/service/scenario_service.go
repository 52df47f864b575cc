package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"scenario-server/internal/graph"
	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// graphGenerationCost - стоимость генерации графа LLM.
const graphGenerationCost int64 = 1

// ScenarioService - жизненный цикл сценария: создание, чтение, генерация графа, прохождение.
type ScenarioService struct {
	graphs    interfaces.GraphStore
	credits   interfaces.CreditLedger
	slots     interfaces.SlotRegistry
	generator interfaces.GraphGenerator
	selector  *PathSelector
	updates   interfaces.ClientUpdatePublisher
	newID     func() string
	logger    *zap.Logger
}

func NewScenarioService(
	graphs interfaces.GraphStore,
	credits interfaces.CreditLedger,
	slots interfaces.SlotRegistry,
	generator interfaces.GraphGenerator,
	selector *PathSelector,
	updates interfaces.ClientUpdatePublisher,
	logger *zap.Logger,
) *ScenarioService {
	return &ScenarioService{
		graphs:    graphs,
		credits:   credits,
		slots:     slots,
		generator: generator,
		selector:  selector,
		updates:   updates,
		newID:     func() string { return uuid.New().String() },
		logger:    logger.Named("ScenarioService"),
	}
}

// CreateScenario сохраняет граф-заготовку под новым id. Кредиты не списываются.
func (s *ScenarioService) CreateScenario(ctx context.Context, prompt, startImageURL string) (*models.Graph, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput)
	}
	id := s.newID()
	g := models.NewPlaceholderGraph(id, prompt)
	g.StartImageURL = strings.TrimSpace(startImageURL)
	if err := s.graphs.Save(ctx, id, g); err != nil {
		s.logger.Error("Failed to save placeholder graph", zap.String("scenarioID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to save scenario: %w", err)
	}
	s.logger.Info("Scenario created", zap.String("scenarioID", id))
	return g, nil
}

// GetScenario возвращает граф. Если графа нет, но у сценария есть кредиты (оплачен до создания),
// сохраняется и возвращается заготовка.
func (s *ScenarioService) GetScenario(ctx context.Context, scenarioID string) (*models.Graph, error) {
	g, err := s.graphs.Load(ctx, scenarioID)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, models.ErrGraphNotFound) {
		return nil, err
	}

	balance, balErr := s.credits.GetBalance(ctx, scenarioID)
	if balErr != nil {
		return nil, fmt.Errorf("failed to read credit balance: %w", balErr)
	}
	if balance == 0 {
		return nil, err
	}
	placeholder := models.NewPlaceholderGraph(scenarioID, "")
	if err := s.graphs.Save(ctx, scenarioID, placeholder); err != nil {
		return nil, fmt.Errorf("failed to save scenario: %w", err)
	}
	s.logger.Info("Placeholder created for paid scenario", zap.String("scenarioID", scenarioID), zap.Int64("balance", balance))
	return placeholder, nil
}

// ListScenarios возвращает только готовые к прохождению графы.
func (s *ScenarioService) ListScenarios(ctx context.Context) ([]*models.Graph, error) {
	all, err := s.graphs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	ready := make([]*models.Graph, 0, len(all))
	for _, g := range all {
		if g.IsReady() {
			ready = append(ready, g)
		}
	}
	return ready, nil
}

// SetStartImage задает seed-изображение для генерации видео.
func (s *ScenarioService) SetStartImage(ctx context.Context, scenarioID, imageURL string) (*models.Graph, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, fmt.Errorf("%w: url is required", models.ErrInvalidInput)
	}
	return s.graphs.Update(ctx, scenarioID, func(g *models.Graph) error {
		g.StartImageURL = imageURL
		return nil
	})
}

// GenerateGraph генерирует граф LLM за 1 кредит; при любой неудаче кредит возвращается.
func (s *ScenarioService) GenerateGraph(ctx context.Context, scenarioID, prompt string) (*models.Graph, error) {
	log := s.logger.With(zap.String("scenarioID", scenarioID))
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput)
	}

	balance, err := s.credits.GetBalance(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to read credit balance: %w", err)
	}
	if balance < graphGenerationCost {
		return nil, &models.InsufficientCreditsError{Required: graphGenerationCost, Available: balance}
	}
	if _, err := s.credits.Adjust(ctx, scenarioID, -graphGenerationCost); err != nil {
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}
	creditsTotal.WithLabelValues("debit").Add(float64(graphGenerationCost))

	g, err := s.generateGraph(ctx, scenarioID, prompt)
	if err != nil {
		refundCredits(context.WithoutCancel(ctx), s.credits, log, scenarioID, graphGenerationCost)
		log.Warn("Graph generation failed, credit refunded", zap.Error(err))
		return nil, err
	}

	publishUpdate(ctx, s.updates, models.ClientUpdate{Type: models.UpdateGraphReady, ScenarioID: scenarioID}, s.logger)
	log.Info("Graph generated", zap.Int("nodes", len(g.Nodes)))
	return g, nil
}

func (s *ScenarioService) generateGraph(ctx context.Context, scenarioID, prompt string) (*models.Graph, error) {
	raw, err := s.generator.GenerateGraph(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGenerationFailed, err)
	}
	doc, err := overrideGraphDocument(raw, scenarioID, prompt)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	g, err := graph.ValidateReady(data)
	if err != nil {
		return nil, err
	}

	// seed-изображение заготовки сохраняется
	if existing, err := s.graphs.Load(ctx, scenarioID); err == nil && g.StartImageURL == "" {
		g.StartImageURL = existing.StartImageURL
	} else if err != nil && !errors.Is(err, models.ErrGraphNotFound) {
		return nil, err
	}

	if err := s.graphs.Save(ctx, scenarioID, g); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrPersistFailed, err)
	}
	return g, nil
}

// overrideGraphDocument подставляет id и prompt сценария до валидации (модель их часто не заполняет)
// и заменяет пустой startNodeId на id первого узла.
func overrideGraphDocument(raw []byte, scenarioID, prompt string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		if _, verr := graph.Validate(raw); verr != nil {
			return nil, verr
		}
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	doc["id"] = scenarioID
	doc["prompt"] = prompt
	if start, _ := doc["startNodeId"].(string); start == "" {
		if nodes, ok := doc["nodes"].([]any); ok && len(nodes) > 0 {
			if first, ok := nodes[0].(map[string]any); ok {
				if id, ok := first["id"].(string); ok {
					doc["startNodeId"] = id
				}
			}
		}
	}
	return doc, nil
}

// SelectPath загружает граф и выбирает следующий узел.
func (s *ScenarioService) SelectPath(ctx context.Context, scenarioID string, in SelectPathInput) (*models.SelectionResult, error) {
	g, err := s.graphs.Load(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return s.selector.SelectPath(ctx, g, in)
}

// InFlightSlots - слоты, которые сейчас генерируются. Только для отображения.
func (s *ScenarioService) InFlightSlots(ctx context.Context, scenarioID string) ([]string, error) {
	slots, err := s.slots.ListInFlight(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight slots: %w", err)
	}
	if slots == nil {
		slots = []string{}
	}
	return slots, nil
}
