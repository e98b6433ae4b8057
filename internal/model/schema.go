package model

import (
	"strings"
	"time"
)

// FunctionSchema 函数选择器 -> 操作类型 -> 支持动作 的声明式映射
// 初始化时批量加载，稳态下不可变 (无删除操作)
type FunctionSchema struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FunctionName  string    `gorm:"type:varchar(128);not null" json:"function_name"` // 如 "transferOwnership(address)"
	Selector      string    `gorm:"type:varchar(10);not null;uniqueIndex" json:"selector"`
	OperationType string    `gorm:"type:varchar(64);not null;index" json:"operation_type"`
	OperationName string    `gorm:"type:varchar(128);not null" json:"operation_name"` // 人类可读名称
	Actions       string    `gorm:"type:text;not null" json:"actions"`                // 逗号分隔的 TxAction 列表
	SelfApproval  bool      `gorm:"not null;default:false" json:"self_approval"`      // 请求者是否可以免授权迁移自己的记录
	CreatedAt     time.Time `json:"created_at"`
}

func (FunctionSchema) TableName() string {
	return "function_schemas"
}

// SupportedActions 解析动作列表
func (s *FunctionSchema) SupportedActions() []TxAction {
	parts := strings.Split(s.Actions, ",")
	out := make([]TxAction, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, TxAction(p))
		}
	}
	return out
}

// SupportsAction 该函数是否支持某个动作
func (s *FunctionSchema) SupportsAction(action TxAction) bool {
	for _, a := range s.SupportedActions() {
		if a == action {
			return true
		}
	}
	return false
}

// JoinActions 动作列表编码为存储格式
func JoinActions(actions []TxAction) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, string(a))
	}
	return strings.Join(parts, ",")
}

// OperationType 操作类型目录
// SingleSlot 为真时，同一操作类型同时最多一条 PENDING 记录
// (如所有权转移)；为假时允许多条并发 (如独立的提现请求)
type OperationType struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	SingleSlot bool      `gorm:"not null;default:false" json:"single_slot"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OperationType) TableName() string {
	return "operation_types"
}
