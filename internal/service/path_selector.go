package service

import (
	"context"
	"errors"
	"fmt"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"go.uber.org/zap"
)

// fallbackCondition - условие SelectedOption при маршрутизации в fallbackNodeId.
const fallbackCondition = "fallback"

// SelectPathInput - данные одного шага прохождения.
type SelectPathInput struct {
	CurrentNodeID  string   `json:"nodeId"`
	UserInput      string   `json:"userInput"`
	History        []string `json:"history"`
	EmotionContext string   `json:"emotionContext,omitempty"`
}

// PathSelector выбирает следующий узел: семантику решает оракул, легальность проверяется здесь.
// Собственного состояния нет.
type PathSelector struct {
	oracle            interfaces.SelectionOracle
	fallbackOnInvalid bool
	logger            *zap.Logger
}

// NewPathSelector. fallbackOnInvalid=false - строгий режим: любой нелегальный ответ оракула = ErrInvalidSelection.
// fallbackOnInvalid=true - нелегальный ответ уводит в fallbackNodeId узла, если он есть и существует.
func NewPathSelector(oracle interfaces.SelectionOracle, fallbackOnInvalid bool, logger *zap.Logger) *PathSelector {
	return &PathSelector{
		oracle:            oracle,
		fallbackOnInvalid: fallbackOnInvalid,
		logger:            logger.Named("PathSelector"),
	}
}

func (p *PathSelector) SelectPath(ctx context.Context, g *models.Graph, in SelectPathInput) (*models.SelectionResult, error) {
	log := p.logger.With(zap.String("scenarioID", g.ID), zap.String("currentNodeID", in.CurrentNodeID))

	current := g.NodeByID(in.CurrentNodeID)
	if current == nil {
		selectionsTotal.WithLabelValues(string(models.KindNodeNotFound)).Inc()
		return nil, fmt.Errorf("%w: %q", models.ErrNodeNotFound, in.CurrentNodeID)
	}
	if current.IsTerminal() {
		// легальных переходов нет, оракул не вызываем
		selectionsTotal.WithLabelValues(string(models.KindInvalidSelection)).Inc()
		return nil, fmt.Errorf("%w: node %q is terminal", models.ErrInvalidSelection, current.ID)
	}

	req := interfaces.SelectionRequest{
		GraphTitle:        g.Title,
		GraphPrompt:       g.Prompt,
		CurrentNodeID:     current.ID,
		CurrentNodeTitle:  current.Title,
		CurrentNodeScript: current.Script,
		Options:           append([]models.Option(nil), current.Options...),
		FallbackNodeID:    current.FallbackNodeID,
		History:           append([]string(nil), in.History...),
		UserInput:         in.UserInput,
		EmotionContext:    in.EmotionContext,
	}

	resp, err := p.oracle.Select(ctx, req)
	if err != nil {
		log.Warn("Selection oracle failed", zap.Error(err))
		if errors.Is(err, models.ErrMalformedOracleResponse) {
			return p.invalid(log, g, current, fmt.Errorf("%w: %w", models.ErrInvalidSelection, err))
		}
		selectionsTotal.WithLabelValues("oracle_failed").Inc()
		return nil, fmt.Errorf("%w: %w", models.ErrOracleFailed, err)
	}

	option, ok := current.OptionFor(resp.NodeID)
	if !ok {
		return p.invalid(log, g, current, fmt.Errorf("%w: %q is not an option of node %q", models.ErrInvalidSelection, resp.NodeID, current.ID))
	}
	next := g.NodeByID(option.NodeID)
	if next == nil {
		return p.invalid(log, g, current, fmt.Errorf("%w: option target %q does not exist", models.ErrInvalidSelection, option.NodeID))
	}

	log.Info("Path selected", zap.String("nextNodeID", next.ID))
	selectionsTotal.WithLabelValues("success").Inc()
	return &models.SelectionResult{NextNode: *next, SelectedOption: option}, nil
}

// invalid применяет политику fallback к нелегальному ответу.
func (p *PathSelector) invalid(log *zap.Logger, g *models.Graph, current *models.Node, cause error) (*models.SelectionResult, error) {
	if p.fallbackOnInvalid && current.FallbackNodeID != "" {
		if fb := g.NodeByID(current.FallbackNodeID); fb != nil {
			log.Info("Invalid selection routed to fallback", zap.String("fallbackNodeID", fb.ID), zap.Error(cause))
			selectionsTotal.WithLabelValues("fallback").Inc()
			return &models.SelectionResult{
				NextNode:       *fb,
				SelectedOption: models.Option{Condition: fallbackCondition, NodeID: fb.ID},
				UsedFallback:   true,
			}, nil
		}
	}
	log.Warn("Invalid selection", zap.Error(cause))
	selectionsTotal.WithLabelValues(string(models.KindInvalidSelection)).Inc()
	return nil, cause
}
