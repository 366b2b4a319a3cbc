// Package stats 识别排产表中的语义列并计算汇总统计。
package stats

import (
	"strings"

	"factoryflow/internal/table"
)

// Role 列的语义角色
type Role string

const (
	RoleOrderID  Role = "orderId"
	RoleQuantity Role = "quantity"
	RoleMachine  Role = "machine"
	RoleDuration Role = "duration"
	RoleShift    Role = "shift"
	RoleTeam     Role = "team"
)

// roleRule 单个角色的候选列名（按优先级）
type roleRule struct {
	Role       Role
	Candidates []string
}

// roleRules 角色识别规则表
// 每个角色先按候选名精确匹配（忽略大小写），全部落空后再按包含关系匹配。
var roleRules = []roleRule{
	{Role: RoleOrderID, Candidates: []string{"code", "order_code", "order_id"}},
	{Role: RoleQuantity, Candidates: []string{"quantity", "qty"}},
	{Role: RoleMachine, Candidates: []string{"machine"}},
	{Role: RoleDuration, Candidates: []string{"duration_mins", "duration", "time"}},
	{Role: RoleShift, Candidates: []string{"shift"}},
	{Role: RoleTeam, Candidates: []string{"assigned_team", "team"}},
}

// Column 匹配到的列
type Column struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// RoleMap 角色 -> 列；未匹配的角色不出现在映射中
type RoleMap map[Role]Column

// Has 角色是否已匹配
func (m RoleMap) Has(role Role) bool {
	_, ok := m[role]
	return ok
}

// Infer 根据表头推断语义列
func Infer(t table.Table) RoleMap {
	return InferHeaders(t.Headers)
}

// InferHeaders 根据表头列表推断语义列
func InferHeaders(headers []string) RoleMap {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	roles := make(RoleMap, len(roleRules))
	for _, rule := range roleRules {
		if idx := matchColumn(lower, rule.Candidates); idx >= 0 {
			roles[rule.Role] = Column{Index: idx, Name: headers[idx]}
		}
	}
	return roles
}

// matchColumn 精确匹配优先于包含匹配；同一轮内候选优先级高者胜，其次列顺序靠前者胜
func matchColumn(headers []string, candidates []string) int {
	for _, cand := range candidates {
		for i, h := range headers {
			if h == cand {
				return i
			}
		}
	}
	for _, cand := range candidates {
		for i, h := range headers {
			if h != "" && strings.Contains(h, cand) {
				return i
			}
		}
	}
	return -1
}
