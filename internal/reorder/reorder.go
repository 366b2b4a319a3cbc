// Package reorder 按固定的展示顺序重排表格列。
package reorder

import (
	"strings"

	"factoryflow/internal/table"
)

// Preferred 列的展示顺序（同一位置的多个写法依次排列）
var Preferred = []string{
	"code", "order_code",
	"item_number",
	"description",
	"colour", "color",
	"material",
	"quantity", "qty",
	"machine",
	"start_time",
	"end_time",
	"duration",
	"shift",
	"team",
}

// Order 计算新的列顺序（原列下标）
// 依次为每个关键词找第一个未使用且等于或包含该关键词的列；其余列保持原相对顺序追加在后。
// 没有任何列命中关键词时返回 nil。
func Order(headers []string) []int {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	used := make([]bool, len(headers))
	order := make([]int, 0, len(headers))
	for _, token := range Preferred {
		for i, h := range lower {
			if used[i] || h == "" {
				continue
			}
			if h == token || strings.Contains(h, token) {
				used[i] = true
				order = append(order, i)
				break
			}
		}
	}
	if len(order) == 0 {
		return nil
	}

	for i := range headers {
		if !used[i] {
			order = append(order, i)
		}
	}
	return order
}

// Reorder 重排表格列；无法重排时原样返回
func Reorder(t table.Table) table.Table {
	order := Order(t.Headers)
	if order == nil {
		return t
	}

	out := table.Table{
		Name:    t.Name,
		Headers: make([]string, len(order)),
		Rows:    make([][]string, len(t.Rows)),
	}
	for j, src := range order {
		out.Headers[j] = t.Headers[src]
	}
	for r, row := range t.Rows {
		cells := make([]string, len(order))
		for j, src := range order {
			if src < len(row) {
				cells[j] = row[src]
			}
		}
		out.Rows[r] = cells
	}
	if t.Structured != nil {
		// 结构化行按列名取值，与列顺序无关
		out.Structured = t.Structured
	}
	return out
}

// ReorderText 重排分隔文本；没有数据行或无法重排时原样返回
func ReorderText(text string) string {
	t := table.Decode(text)
	if len(t.Headers) == 0 || len(t.Rows) == 0 {
		return text
	}
	if Order(t.Headers) == nil {
		return text
	}
	return Reorder(t).Text()
}
