package models

import (
	"errors"
	"fmt"
	"strings"
)

// Стандартные ошибки домена сценариев.
var (
	// Graph
	ErrValidation           = errors.New("graph validation failed")
	ErrReferentialIntegrity = errors.New("graph has dangling references")
	ErrGraphNotFound        = errors.New("graph not found")
	ErrConcurrentUpdate     = errors.New("graph was modified concurrently")

	// Path selection
	ErrNodeNotFound            = errors.New("node not found")
	ErrInvalidSelection        = errors.New("invalid selection")
	ErrOracleFailed            = errors.New("selection oracle failed")
	ErrMalformedOracleResponse = errors.New("malformed oracle response")

	// Generation
	ErrAllSlotsBusy        = errors.New("all generation slots are busy")
	ErrSlotBusy            = errors.New("generation already in progress for this slot")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrGenerationFailed    = errors.New("asset generation failed")
	ErrMissingStartImage   = errors.New("scenario has no start image")
	ErrPersistFailed       = errors.New("failed to persist generated assets")

	ErrInvalidInput = errors.New("invalid input data")
)

// FieldIssue - одна проблема формы графа.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError описывает все найденные проблемы формы графа.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Field == "" {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, is.Field+": "+is.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DanglingReference - ссылка на несуществующий узел.
type DanglingReference struct {
	// NodeID - узел, в котором найдена ссылка. Пусто для startNodeId.
	NodeID string `json:"nodeId,omitempty"`
	// Field: "options[i].nodeId", "fallbackNodeId" или "startNodeId".
	Field  string `json:"field"`
	Target string `json:"target"`
}

func (r DanglingReference) String() string {
	if r.NodeID == "" {
		return fmt.Sprintf("%s -> %q", r.Field, r.Target)
	}
	return fmt.Sprintf("node %q %s -> %q", r.NodeID, r.Field, r.Target)
}

type ReferentialIntegrityError struct {
	References []DanglingReference
}

func (e *ReferentialIntegrityError) Error() string {
	parts := make([]string, 0, len(e.References))
	for _, r := range e.References {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf("%s: %s", ErrReferentialIntegrity, strings.Join(parts, ", "))
}

func (e *ReferentialIntegrityError) Unwrap() error { return ErrReferentialIntegrity }

// InsufficientCreditsError сообщает сколько кредитов нужно и сколько есть.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("%s: required %d, available %d", ErrInsufficientCredits, e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }
