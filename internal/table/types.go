package table

// DefaultName 纯文本表格（非多 Sheet 工作簿）的默认名称
const DefaultName = "Sheet 1"

// Table 逻辑表：一个 Sheet 或一段分隔文本对应一张表
type Table struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`

	// Structured 来自结构化来源（工作簿 Sheet）时的行映射：列名 -> 单元格值
	Structured []map[string]string `json:"structured,omitempty"`
}

// Empty 是否没有数据行
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Cell 安全取值：越界返回空串
func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// HeaderIndex 返回列名所在位置，未找到返回 -1
func (t Table) HeaderIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Field 有序记录中的一个键值对
type Field struct {
	Key   string
	Value any
}

// Record 保持键顺序的行对象（JSON 对象解码结果、Sheet 行等）
type Record []Field

// Keys 按原始顺序返回键
func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Get 按键取值
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}
