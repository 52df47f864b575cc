package graph

import (
	"fmt"

	"scenario-server/internal/models"
)

// CheckReferentialIntegrity возвращает все ссылки графа на несуществующие узлы, в порядке узлов.
// Пустой результат означает, что граф целостен. startNodeId проверяется только у непустого графа:
// плейсхолдер без узлов допустим.
func CheckReferentialIntegrity(g *models.Graph) []models.DanglingReference {
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = struct{}{}
	}

	var refs []models.DanglingReference
	if len(g.Nodes) > 0 {
		if _, ok := ids[g.StartNodeID]; !ok {
			refs = append(refs, models.DanglingReference{Field: "startNodeId", Target: g.StartNodeID})
		}
	}
	for _, n := range g.Nodes {
		for i, o := range n.Options {
			if _, ok := ids[o.NodeID]; !ok {
				refs = append(refs, models.DanglingReference{
					NodeID: n.ID,
					Field:  fmt.Sprintf("options[%d].nodeId", i),
					Target: o.NodeID,
				})
			}
		}
		if n.FallbackNodeID != "" {
			if _, ok := ids[n.FallbackNodeID]; !ok {
				refs = append(refs, models.DanglingReference{NodeID: n.ID, Field: "fallbackNodeId", Target: n.FallbackNodeID})
			}
		}
	}
	return refs
}

// IntegrityError оборачивает результат CheckReferentialIntegrity в ошибку (nil если все ок).
func IntegrityError(g *models.Graph) error {
	refs := CheckReferentialIntegrity(g)
	if len(refs) == 0 {
		return nil
	}
	return &models.ReferentialIntegrityError{References: refs}
}

// Neighbors возвращает узлы, достижимые из nodeID за один переход, в порядке опций.
// Висячие цели пропускаются.
func Neighbors(g *models.Graph, nodeID string) ([]models.Node, error) {
	n := g.NodeByID(nodeID)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNodeNotFound, nodeID)
	}
	out := make([]models.Node, 0, len(n.Options))
	for _, o := range n.Options {
		if target := g.NodeByID(o.NodeID); target != nil {
			out = append(out, *target)
		}
	}
	return out, nil
}

func TerminalNodes(g *models.Graph) []models.Node {
	var out []models.Node
	for _, n := range g.Nodes {
		if n.IsTerminal() {
			out = append(out, n)
		}
	}
	return out
}
