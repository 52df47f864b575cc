package models

// IdleSlotKey - ключ слота для общего "idle" видео сценария (состояние "слушаю").
const IdleSlotKey = "idle"

// Toast types
const (
	ToastPositive = "positive"
	ToastNegative = "negative"
	ToastNeutral  = "neutral"
)

// Graph - корневая сущность одного сценария.
type Graph struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Prompt        string `json:"prompt"`
	StartNodeID   string `json:"startNodeId"`
	StartImageURL string `json:"startImageUrl,omitempty"`
	IdleVideoURL  string `json:"idleVideoUrl,omitempty"`
	Nodes         []Node `json:"nodes"`
}

// Node - один шаг сценария. Узел без опций является терминальным.
type Node struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Script         string   `json:"script"`
	VideoURL       string   `json:"videoUrl,omitempty"`
	Toast          *Toast   `json:"toast,omitempty"`
	Options        []Option `json:"options"`
	FallbackNodeID string   `json:"fallbackNodeId,omitempty"`
}

// Toast - всплывающее уведомление, показываемое при входе в узел.
type Toast struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Option - ребро графа: условие перехода и целевой узел.
type Option struct {
	Condition string `json:"condition"`
	NodeID    string `json:"nodeId"`
}

// NewPlaceholderGraph создает пустой граф, который существует между созданием сценария и генерацией.
func NewPlaceholderGraph(id, prompt string) *Graph {
	return &Graph{
		ID:          id,
		Title:       "Untitled",
		Prompt:      prompt,
		StartNodeID: "start",
		Nodes:       []Node{},
	}
}

// NodeByID возвращает указатель на узел внутри графа или nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

func (g *Graph) HasNode(id string) bool {
	return g.NodeByID(id) != nil
}

// NodeIDs returns node ids in graph order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// IsReady сообщает, можно ли проходить граф: есть узлы и стартовый узел существует.
func (g *Graph) IsReady() bool {
	return len(g.Nodes) > 0 && g.HasNode(g.StartNodeID)
}

// Clone делает глубокую копию графа, чтобы мутации не протекали между горутинами.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	c := *g
	c.Nodes = make([]Node, len(g.Nodes))
	for i, n := range g.Nodes {
		cn := n
		if n.Toast != nil {
			t := *n.Toast
			cn.Toast = &t
		}
		cn.Options = append([]Option(nil), n.Options...)
		if cn.Options == nil {
			cn.Options = []Option{}
		}
		c.Nodes[i] = cn
	}
	return &c
}

func (n *Node) IsTerminal() bool {
	return len(n.Options) == 0
}

// OptionFor возвращает опцию, ведущую в nodeID, если такая есть.
func (n *Node) OptionFor(nodeID string) (Option, bool) {
	for _, o := range n.Options {
		if o.NodeID == nodeID {
			return o, true
		}
	}
	return Option{}, false
}
