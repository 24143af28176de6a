package servicetree

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultLocalServiceLabel = "Local Service"
	DefaultAzureServiceLabel = "Azure Blockchain Service"
)

// Tree 服务树。每次结构变更先写入完整快照，写入成功后才替换内存中的节点集合。
type Tree struct {
	mu     sync.RWMutex
	nodes  *arena
	store  Store
	logger *zap.Logger
}

// New 创建空树
func New(store Store, logger *zap.Logger) *Tree {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tree{nodes: newArena(), store: store, logger: logger}
}

// Load 从存储中恢复树。快照损坏时返回空树与 ErrCorruptState。
func Load(store Store, logger *zap.Logger) (*Tree, error) {
	t := New(store, logger)

	data, err := store.Get(SnapshotKey)
	if err != nil {
		return t, fmt.Errorf("failed to read service tree: %w", err)
	}
	if data == nil {
		return t, nil
	}

	a, err := decodeSnapshot(data)
	if err != nil {
		t.logger.Warn("discarding corrupt service tree snapshot", zap.Error(err))
		return t, err
	}
	t.nodes = a
	t.logger.Debug("service tree loaded", zap.Int("nodes", len(a.order)))
	return t, nil
}

// commit 持久化新快照，成功后替换当前节点集合。调用方需持有写锁。
func (t *Tree) commit(next *arena) error {
	if t.store != nil {
		data, err := encodeSnapshot(next)
		if err != nil {
			return err
		}
		if err := t.store.Put(SnapshotKey, data); err != nil {
			return fmt.Errorf("failed to persist service tree: %w", err)
		}
	}
	t.nodes = next
	return nil
}

// Children 返回父节点下的子节点，parentID 为空时返回根节点
func (t *Tree) Children(parentID string) []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes.children(parentID)
}

// Nodes 按插入顺序返回全部节点
func (t *Tree) Nodes() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Node, 0, len(t.nodes.order))
	for _, id := range t.nodes.order {
		out = append(out, t.nodes.nodes[id])
	}
	return out
}

// Get 按 ID 查找节点
func (t *Tree) Get(id string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes.nodes[id]
	return n, ok
}

// AddChild 在 parentID 下添加节点，ID 为空时自动生成
func (t *Tree) AddChild(parentID string, node Node) (Node, error) {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	node.ParentID = parentID

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.nodes.validate(node); err != nil {
		return Node{}, err
	}
	next := t.nodes.clone()
	next.insert(node)
	if err := t.commit(next); err != nil {
		return Node{}, err
	}
	t.logger.Debug("service node added", zap.String("id", node.ID), zap.String("tag", string(node.Tag())), zap.String("label", node.Label))
	return node, nil
}

// RemoveChild 删除 parentID 下的节点及其子树
func (t *Tree) RemoveChild(parentID, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes.nodes[id]
	if !ok || n.ParentID != parentID {
		return fmt.Errorf("%w: %s under %q", ErrNodeNotFound, id, parentID)
	}
	next := t.nodes.clone()
	removed := next.removeSubtree(id)
	if err := t.commit(next); err != nil {
		return err
	}
	t.logger.Debug("service node removed", zap.String("id", id), zap.Int("removed", removed))
	return nil
}

// UpdateLocal 更新本地项目的模拟器 pid 与端口
func (t *Tree) UpdateLocal(id string, pid, port int) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	local, ok := n.Payload.(LocalProject)
	if !ok {
		return Node{}, fmt.Errorf("%w: %s is %s, not a local project", ErrKindMismatch, id, n.Tag())
	}
	if local.PID == pid && local.Port == port {
		return n, nil
	}
	local.PID = pid
	local.Port = port
	n.Payload = local

	next := t.nodes.clone()
	next.insert(n)
	if err := t.commit(next); err != nil {
		return Node{}, err
	}
	return n, nil
}

// ClearLocalPIDs 清除所有本地项目记录的 pid
func (t *Tree) ClearLocalPIDs() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.nodes.clone()
	changed := false
	for _, id := range next.order {
		n := next.nodes[id]
		if local, ok := n.Payload.(LocalProject); ok && local.PID != 0 {
			local.PID = 0
			n.Payload = local
			next.nodes[id] = n
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return t.commit(next)
}

// FindLocalProjectByPort 查找使用指定端口的本地项目
func (t *Tree) FindLocalProjectByPort(port int) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.nodes.order {
		n := t.nodes.nodes[id]
		if local, ok := n.Payload.(LocalProject); ok && local.Port == port {
			return n, true
		}
	}
	return Node{}, false
}

// Service 返回指定类型的服务根节点
func (t *Tree) Service(kind Kind) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.nodes.children("") {
		if n.Kind() == kind && n.Variant() == VariantService {
			return n, true
		}
	}
	return Node{}, false
}

// EnsureDefaultServices 保证本地与 Azure 服务根节点各有一个
func (t *Tree) EnsureDefaultServices() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.nodes.clone()
	added := 0
	for _, def := range []Node{
		{Label: DefaultLocalServiceLabel, Payload: LocalService{}},
		{Label: DefaultAzureServiceLabel, Payload: AzureService{}},
	} {
		found := false
		for _, n := range next.children("") {
			if n.Tag() == def.Tag() {
				found = true
				break
			}
		}
		if found {
			continue
		}
		def.ID = uuid.NewString()
		if err := next.validate(def); err != nil {
			return err
		}
		next.insert(def)
		added++
	}
	if added == 0 {
		return nil
	}
	return t.commit(next)
}
