package servicetree

import (
	"encoding/json"
	"fmt"
)

const (
	// SnapshotKey 快照在存储中的键
	SnapshotKey     = "servicetree/snapshot"
	snapshotVersion = 1
)

type snapshot struct {
	Version int             `json:"version"`
	Nodes   []persistedNode `json:"nodes"`
}

type persistedNode struct {
	ID      string          `json:"id"`
	Parent  string          `json:"parent,omitempty"`
	Label   string          `json:"label"`
	Tag     Tag             `json:"tag"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeSnapshot(a *arena) ([]byte, error) {
	snap := snapshot{Version: snapshotVersion, Nodes: make([]persistedNode, 0, len(a.order))}
	for _, id := range a.order {
		n := a.nodes[id]
		payload, err := json.Marshal(n.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload of %s: %w", id, err)
		}
		snap.Nodes = append(snap.Nodes, persistedNode{
			ID:      n.ID,
			Parent:  n.ParentID,
			Label:   n.Label,
			Tag:     n.Tag(),
			Payload: payload,
		})
	}
	return json.Marshal(snap)
}

// decodeSnapshot 按标签解码每个节点，并校验树结构
func decodeSnapshot(data []byte) (*arena, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrCorruptState, snap.Version)
	}

	a := newArena()
	for _, pn := range snap.Nodes {
		decode, ok := lookupDecoder(pn.Tag)
		if !ok {
			return nil, fmt.Errorf("%w: unknown node tag %q", ErrCorruptState, pn.Tag)
		}
		payload, err := decode(pn.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrCorruptState, pn.ID, err)
		}
		if payload.Tag() != pn.Tag {
			return nil, fmt.Errorf("%w: node %s decoded as %s, tagged %s", ErrCorruptState, pn.ID, payload.Tag(), pn.Tag)
		}
		node := Node{ID: pn.ID, ParentID: pn.Parent, Label: pn.Label, Payload: payload}
		if err := a.validate(node); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		a.insert(node)
	}
	return a, nil
}
