package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"scenario-server/internal/models"

	"github.com/go-playground/validator/v10"
)

// Документы ниже - "сырая" форма графа. Указатели нужны, чтобы отличать отсутствующее поле
// от пустой строки: `required` на указателе означает "поле присутствует".
type graphDocument struct {
	ID            *string        `json:"id"`
	Title         *string        `json:"title" validate:"required"`
	Prompt        *string        `json:"prompt" validate:"required"`
	StartNodeID   *string        `json:"startNodeId" validate:"required"`
	StartImageURL *string        `json:"startImageUrl"`
	IdleVideoURL  *string        `json:"idleVideoUrl"`
	Nodes         []nodeDocument `json:"nodes" validate:"required,dive"`
}

type nodeDocument struct {
	ID             *string          `json:"id" validate:"required"`
	Title          *string          `json:"title" validate:"required"`
	Script         *string          `json:"script" validate:"required"`
	VideoURL       *string          `json:"videoUrl"`
	Toast          *toastDocument   `json:"toast"`
	Options        []optionDocument `json:"options" validate:"required,dive"`
	FallbackNodeID *string          `json:"fallbackNodeId"`
}

type toastDocument struct {
	Message *string `json:"message" validate:"required"`
	Type    *string `json:"type" validate:"required,oneof=positive negative neutral"`
}

type optionDocument struct {
	Condition *string `json:"condition" validate:"required"`
	NodeID    *string `json:"nodeId" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Пути ошибок в терминах JSON-ключей, а не имен Go-полей.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate проверяет форму графа (обязательные поля, типы, элементы массивов, уникальность id узлов).
// Referential integrity здесь НЕ проверяется, см. CheckReferentialIntegrity.
func Validate(data []byte) (*models.Graph, error) {
	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &models.ValidationError{Issues: []models.FieldIssue{decodeIssue(err)}}
	}

	var issues []models.FieldIssue
	if err := validate.Struct(&doc); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		for _, fe := range fieldErrs {
			issues = append(issues, formatFieldError(fe))
		}
	}
	if len(issues) > 0 {
		return nil, &models.ValidationError{Issues: issues}
	}

	seen := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if *n.ID == models.IdleSlotKey {
			// ключ слота idle-видео
			issues = append(issues, models.FieldIssue{
				Field:   fmt.Sprintf("nodes[%d].id", i),
				Message: fmt.Sprintf("node id %q is reserved", models.IdleSlotKey),
			})
			continue
		}
		if first, dup := seen[*n.ID]; dup {
			issues = append(issues, models.FieldIssue{
				Field:   fmt.Sprintf("nodes[%d].id", i),
				Message: fmt.Sprintf("duplicate node id %q (first at nodes[%d])", *n.ID, first),
			})
			continue
		}
		seen[*n.ID] = i
	}
	if len(issues) > 0 {
		return nil, &models.ValidationError{Issues: issues}
	}

	return doc.toModel(), nil
}

// ValidateValue проверяет произвольное значение (например, уже разобранный ответ LLM).
func ValidateValue(v any) (*models.Graph, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &models.ValidationError{Issues: []models.FieldIssue{{Message: fmt.Sprintf("value is not JSON-encodable: %v", err)}}}
	}
	return Validate(data)
}

// ValidateReady - полная проверка графа из недоверенного источника:
// форма, ссылки и наличие стартового узла.
func ValidateReady(data []byte) (*models.Graph, error) {
	g, err := Validate(data)
	if err != nil {
		return nil, err
	}
	if err := IntegrityError(g); err != nil {
		return g, err
	}
	if len(g.Nodes) == 0 {
		return g, &models.ValidationError{Issues: []models.FieldIssue{{Field: "nodes", Message: "must contain at least one node"}}}
	}
	return g, nil
}

func decodeIssue(err error) models.FieldIssue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "(root)"
		}
		return models.FieldIssue{Field: field, Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)}
	}
	return models.FieldIssue{Message: fmt.Sprintf("invalid JSON: %v", err)}
}

func formatFieldError(fe validator.FieldError) models.FieldIssue {
	field := fe.Namespace()
	// Отрезаем имя корневого типа: "graphDocument.nodes[0].id" -> "nodes[0].id"
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return models.FieldIssue{Field: field, Message: "is required"}
	case "oneof":
		return models.FieldIssue{Field: field, Message: fmt.Sprintf("must be one of [%s] (got: %v)", fe.Param(), fe.Value())}
	default:
		return models.FieldIssue{Field: field, Message: fmt.Sprintf("failed validation '%s'", fe.Tag())}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (d *graphDocument) toModel() *models.Graph {
	g := &models.Graph{
		ID:            deref(d.ID),
		Title:         deref(d.Title),
		Prompt:        deref(d.Prompt),
		StartNodeID:   deref(d.StartNodeID),
		StartImageURL: deref(d.StartImageURL),
		IdleVideoURL:  deref(d.IdleVideoURL),
		Nodes:         make([]models.Node, 0, len(d.Nodes)),
	}
	for _, n := range d.Nodes {
		node := models.Node{
			ID:             deref(n.ID),
			Title:          deref(n.Title),
			Script:         deref(n.Script),
			VideoURL:       deref(n.VideoURL),
			FallbackNodeID: deref(n.FallbackNodeID),
			Options:        make([]models.Option, 0, len(n.Options)),
		}
		if n.Toast != nil {
			node.Toast = &models.Toast{Message: deref(n.Toast.Message), Type: deref(n.Toast.Type)}
		}
		for _, o := range n.Options {
			node.Options = append(node.Options, models.Option{Condition: deref(o.Condition), NodeID: deref(o.NodeID)})
		}
		g.Nodes = append(g.Nodes, node)
	}
	return g
}
