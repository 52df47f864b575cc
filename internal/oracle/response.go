package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"
)

// ErrAIGenerationFailed - ошибка запроса к AI (сеть, API, пустой ответ).
var ErrAIGenerationFailed = errors.New("ai generation failed")

// DecodeSelection строго разбирает ответ оракула: ровно {"nodeId": "<непустая строка>"}.
// Все остальное - models.ErrMalformedOracleResponse, без попыток вытащить id из текста.
func DecodeSelection(content string) (interfaces.SelectionResponse, error) {
	var resp interfaces.SelectionResponse

	dec := json.NewDecoder(strings.NewReader(stripCodeFence(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return interfaces.SelectionResponse{}, fmt.Errorf("%w: %v", models.ErrMalformedOracleResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return interfaces.SelectionResponse{}, fmt.Errorf("%w: trailing data after JSON object", models.ErrMalformedOracleResponse)
	}
	if strings.TrimSpace(resp.NodeID) == "" {
		return interfaces.SelectionResponse{}, fmt.Errorf("%w: nodeId is empty", models.ErrMalformedOracleResponse)
	}
	return resp, nil
}

// stripCodeFence убирает обертку ```json ... ```, которую иногда добавляют модели.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
