package workbook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"factoryflow/internal/table"
)

// ContentType xlsx 的 MIME 类型
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Excel 对 Sheet 名的长度限制
const maxSheetNameLen = 31

// Write 将逻辑表写成 xlsx，每张表一个 Sheet
func Write(tables []table.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if len(tables) == 0 {
		tables = []table.Table{{Name: "Sheet1"}}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	used := make(map[string]bool, len(tables))
	for i, t := range tables {
		name := sheetName(t.Name, i, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}

		if err := writeSheet(f, name, t); err != nil {
			return nil, err
		}
		if len(t.Headers) > 0 {
			_ = f.SetRowStyle(name, 1, 1, headerStyle)
			last, _ := excelize.ColumnNumberToName(len(t.Headers))
			_ = f.SetColWidth(name, "A", last, 18)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, t table.Table) error {
	if len(t.Headers) == 0 {
		return nil
	}
	header := toCells(t.Headers)
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := toCells(row)
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// sheetName 清理非法字符并保证唯一
func sheetName(name string, idx int, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", idx+1)
	}
	if r := []rune(name); len(r) > maxSheetNameLen {
		name = string(r[:maxSheetNameLen])
	}
	base := name
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		r := []rune(base)
		if len(r)+len(suffix) > maxSheetNameLen {
			r = r[:maxSheetNameLen-len(suffix)]
		}
		name = string(r) + suffix
	}
	used[name] = true
	return name
}
