package servicetree

import "fmt"

// arena 以 ID 寻址的节点集合，order 保持插入顺序（父节点总在子节点之前）
type arena struct {
	nodes map[string]Node
	order []string
}

func newArena() *arena {
	return &arena{nodes: make(map[string]Node)}
}

func (a *arena) clone() *arena {
	c := &arena{
		nodes: make(map[string]Node, len(a.nodes)),
		order: append([]string(nil), a.order...),
	}
	for id, n := range a.nodes {
		c.nodes[id] = n
	}
	return c
}

func (a *arena) insert(n Node) {
	if _, ok := a.nodes[n.ID]; !ok {
		a.order = append(a.order, n.ID)
	}
	a.nodes[n.ID] = n
}

// validate 检查节点能否挂到当前树上
func (a *arena) validate(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if n.Payload == nil {
		return fmt.Errorf("node %s has no payload", n.ID)
	}
	if _, ok := a.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}

	switch n.Variant() {
	case VariantService:
		if n.ParentID != "" {
			return fmt.Errorf("%w: service %s must be a root node", ErrInvalidParent, n.ID)
		}
	case VariantProject:
		parent, ok := a.nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("%w: parent %q of %s", ErrNodeNotFound, n.ParentID, n.ID)
		}
		if parent.Variant() != VariantService {
			return fmt.Errorf("%w: project %s must be placed under a service", ErrInvalidParent, n.ID)
		}
		if parent.Kind() != n.Kind() {
			return fmt.Errorf("%w: %s project cannot be placed under %s service", ErrKindMismatch, n.Kind(), parent.Kind())
		}
	default:
		return fmt.Errorf("node %s has unknown variant %q", n.ID, n.Variant())
	}
	return nil
}

func (a *arena) children(parentID string) []Node {
	var out []Node
	for _, id := range a.order {
		if n := a.nodes[id]; n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out
}

// removeSubtree 删除节点及其全部后代
func (a *arena) removeSubtree(id string) int {
	doomed := map[string]bool{id: true}
	for _, nid := range a.order {
		if doomed[a.nodes[nid].ParentID] {
			doomed[nid] = true
		}
	}
	kept := a.order[:0]
	for _, nid := range a.order {
		if doomed[nid] {
			delete(a.nodes, nid)
			continue
		}
		kept = append(kept, nid)
	}
	a.order = kept
	return len(doomed)
}
