// Package servicetree 维护 Service/Project 节点树并持久化到键值存储
package servicetree

import (
	"errors"
	"strings"
)

var (
	// ErrCorruptState 持久化快照无法解码
	ErrCorruptState = errors.New("corrupt service tree state")
	// ErrNodeNotFound 节点不存在
	ErrNodeNotFound = errors.New("service node not found")
	// ErrKindMismatch 项目与父服务的类型不一致，或对节点做了不适用于其类型的操作
	ErrKindMismatch = errors.New("service node kind mismatch")
	// ErrInvalidParent 服务只能位于根，项目只能位于服务之下
	ErrInvalidParent = errors.New("invalid parent for service node")
	// ErrDuplicateNode 节点 ID 已存在
	ErrDuplicateNode = errors.New("duplicate service node id")
)

// Kind 节点所属的网络类型
type Kind string

const (
	KindLocal Kind = "local"
	KindAzure Kind = "azure"
)

// Variant 节点角色
type Variant string

const (
	VariantService Variant = "service"
	VariantProject Variant = "project"
)

// Tag 持久化时使用的判别标签，形如 kind/variant
type Tag string

const (
	TagLocalService Tag = "local/service"
	TagLocalProject Tag = "local/project"
	TagAzureService Tag = "azure/service"
	TagAzureProject Tag = "azure/project"
)

// Kind 返回标签中的类型部分
func (t Tag) Kind() Kind {
	kind, _, _ := strings.Cut(string(t), "/")
	return Kind(kind)
}

// Variant 返回标签中的角色部分
func (t Tag) Variant() Variant {
	_, variant, _ := strings.Cut(string(t), "/")
	return Variant(variant)
}

// Payload 节点的类型相关数据
type Payload interface {
	Tag() Tag
}

// LocalService 本地网络服务根节点
type LocalService struct{}

func (LocalService) Tag() Tag { return TagLocalService }

// LocalProject 本地模拟器项目
type LocalProject struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	PID  int    `json:"pid,omitempty"` // 0 表示模拟器未运行
}

func (LocalProject) Tag() Tag { return TagLocalProject }

// AzureService Azure Blockchain Service 根节点
type AzureService struct{}

func (AzureService) Tag() Tag { return TagAzureService }

// AzureProject Azure Blockchain Service 成员
type AzureProject struct {
	SubscriptionID string `json:"subscriptionId"`
	ResourceGroup  string `json:"resourceGroup"`
	MemberName     string `json:"memberName"`
}

func (AzureProject) Tag() Tag { return TagAzureProject }

// Node 树中的节点。树只通过值返回节点，修改必须经由 Tree 的方法。
type Node struct {
	ID       string
	ParentID string
	Label    string
	Payload  Payload
}

// Tag 返回节点的判别标签
func (n Node) Tag() Tag {
	if n.Payload == nil {
		return ""
	}
	return n.Payload.Tag()
}

// Kind 返回节点类型
func (n Node) Kind() Kind {
	return n.Tag().Kind()
}

// Variant 返回节点角色
func (n Node) Variant() Variant {
	return n.Tag().Variant()
}
