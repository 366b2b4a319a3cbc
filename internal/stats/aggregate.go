package stats

import (
	"strings"

	"go.uber.org/zap"

	"factoryflow/internal/table"
)

// Stats 排产结果汇总
type Stats struct {
	TotalOrders        int            `json:"totalOrders"`
	TotalUnits         int            `json:"totalUnits"`
	AvgBatchDuration   float64        `json:"avgBatchDuration"`
	OrdersWithTeams    int            `json:"ordersWithTeams"`
	MachineUtilization []MachineCount `json:"machineUtilization"`
	ShiftDistribution  []ShiftBucket  `json:"shiftDistribution"`
	TotalRows          int            `json:"totalRows"`
}

// MachineCount 单台机器分配的行数
type MachineCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ShiftBucket 班次分布
type ShiftBucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// 班次归类（输出顺序即此顺序）
var shiftCategories = []struct {
	token string
	label string
}{
	{"night", "Night"},
	{"morning", "Morning"},
	{"afternoon", "Afternoon"},
	{"evening", "Evening"},
}

// Aggregator 统计计算器
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator 创建统计计算器
func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger}
}

// Compute 推断语义列并计算统计
func (a *Aggregator) Compute(t table.Table) *Stats {
	return a.Aggregate(t, Infer(t))
}

// Compute 使用默认计算器
func Compute(t table.Table) *Stats {
	return NewAggregator(nil).Compute(t)
}

// Aggregate 按给定语义列单遍扫描计算统计
// 没有数据行时返回 nil，调用方应视为“无统计”而非错误。
func (a *Aggregator) Aggregate(t table.Table, roles RoleMap) *Stats {
	if len(t.Headers) == 0 || len(t.Rows) == 0 {
		return nil
	}

	var (
		orders      = make(map[string]struct{})
		machineIdx  = make(map[string]int)
		machines    []MachineCount
		rawShifts   []ShiftBucket
		shiftIdx    = make(map[string]int)
		totalUnits  int
		totalDur    float64
		withTeams   int
		counted     int
		skippedRows int
	)

	value := func(row []string, role Role) (string, bool) {
		col, ok := roles[role]
		if !ok || col.Index >= len(row) {
			return "", ok
		}
		return strings.TrimSpace(row[col.Index]), true
	}

	for i, row := range t.Rows {
		if len(row) > len(t.Headers) {
			skippedRows++
			a.logger.Warn("跳过列数异常的行", zap.Int("row", i+1), zap.Int("fields", len(row)))
			continue
		}
		counted++

		if v, ok := value(row, RoleOrderID); ok && v != "" {
			orders[v] = struct{}{}
		}
		if v, ok := value(row, RoleQuantity); ok {
			totalUnits += ParseIntPrefix(v)
		}
		if v, ok := value(row, RoleDuration); ok {
			totalDur += ParseFloatPrefix(v)
		}
		if v, ok := value(row, RoleTeam); ok && v != "" {
			withTeams++
		}
		if v, ok := value(row, RoleMachine); ok && v != "" {
			if idx, seen := machineIdx[v]; seen {
				machines[idx].Count++
			} else {
				machineIdx[v] = len(machines)
				machines = append(machines, MachineCount{Name: v, Count: 1})
			}
		}
		if v, ok := value(row, RoleShift); ok && v != "" {
			if idx, seen := shiftIdx[v]; seen {
				rawShifts[idx].Value++
			} else {
				shiftIdx[v] = len(rawShifts)
				rawShifts = append(rawShifts, ShiftBucket{Name: v, Value: 1})
			}
		}
	}

	if counted == 0 {
		a.logger.Warn("所有数据行均无法解析", zap.Int("skipped", skippedRows))
		return nil
	}

	totalOrders := len(orders)
	if totalOrders == 0 {
		totalOrders = counted
	}
	if machines == nil {
		machines = []MachineCount{}
	}

	return &Stats{
		TotalOrders:        totalOrders,
		TotalUnits:         totalUnits,
		AvgBatchDuration:   totalDur / float64(counted),
		OrdersWithTeams:    withTeams,
		MachineUtilization: machines,
		ShiftDistribution:  RegroupShifts(rawShifts),
		TotalRows:          counted,
	}
}

// RegroupShifts 将原始班次值归入 Night / Morning / Afternoon / Evening 四类
// 不含任何类别关键词的值直接丢弃；只输出计数非零的类别。对结果再次归类结果不变。
func RegroupShifts(raw []ShiftBucket) []ShiftBucket {
	totals := make([]int, len(shiftCategories))
	for _, b := range raw {
		lower := strings.ToLower(strings.TrimSpace(b.Name))
		for i, c := range shiftCategories {
			if strings.Contains(lower, c.token) {
				totals[i] += b.Value
				break
			}
		}
	}

	out := []ShiftBucket{}
	for i, c := range shiftCategories {
		if totals[i] > 0 {
			out = append(out, ShiftBucket{Name: c.label, Value: totals[i]})
		}
	}
	return out
}
