package workbook

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"factoryflow/internal/sniff"
	"factoryflow/internal/table"
)

// 空表头列的占位名，重复时追加序号
const emptyHeaderName = "__EMPTY"

// Extractor 工作簿解析器：每个 Sheet 产出一张逻辑表
type Extractor struct {
	logger  *zap.Logger
	decoder *table.Decoder
}

// NewExtractor 创建解析器
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		logger:  logger,
		decoder: table.NewDecoder(logger),
	}
}

// ExtractSheets 按工作簿顺序返回所有 Sheet
// 工作簿损坏时退化为按分隔文本解析；仍失败则返回空切片。
func (e *Extractor) ExtractSheets(data []byte) []table.Table {
	tables, err := e.readWorkbook(data)
	if err == nil {
		return tables
	}

	e.logger.Warn("工作簿解析失败，按文本处理", zap.Error(err))
	if t, ok := e.decodeText(data); ok {
		return []table.Table{t}
	}
	return []table.Table{}
}

// FirstSheetText 首个 Sheet 的分隔文本（仅用于统计）
func (e *Extractor) FirstSheetText(data []byte) string {
	sheets := e.ExtractSheets(data)
	if len(sheets) == 0 {
		return ""
	}
	return sheets[0].Text()
}

// Tables 按载荷类型返回逻辑表：工作簿逐 Sheet 解析，其余按单张分隔文本解析
func (e *Extractor) Tables(contentType string, data []byte) []table.Table {
	if len(data) == 0 {
		return []table.Table{}
	}
	if sniff.IsSpreadsheetBlob(contentType, data) {
		return e.ExtractSheets(data)
	}
	if t, ok := e.decodeText(data); ok {
		return []table.Table{t}
	}
	return []table.Table{}
}

// FirstTable 返回第一张表
func (e *Extractor) FirstTable(contentType string, data []byte) (table.Table, bool) {
	tables := e.Tables(contentType, data)
	if len(tables) == 0 {
		return table.Table{}, false
	}
	return tables[0], true
}

func (e *Extractor) decodeText(data []byte) (table.Table, bool) {
	// 二进制内容按文本解码只会得到乱码
	if !utf8.Valid(data) {
		return table.Table{}, false
	}
	t := e.decoder.Decode(string(data))
	if len(t.Headers) == 0 {
		return table.Table{}, false
	}
	return t, true
}

func (e *Extractor) readWorkbook(data []byte) ([]table.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	tables := make([]table.Table, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			e.logger.Warn("读取 Sheet 失败", zap.String("sheet", name), zap.Error(err))
			continue
		}
		tables = append(tables, buildSheetTable(name, rows))
	}
	return tables, nil
}

// buildSheetTable 首行作为表头，空行跳过，缺失单元格补空串
func buildSheetTable(name string, rows [][]string) table.Table {
	t := table.Table{
		Name:       name,
		Headers:    []string{},
		Rows:       [][]string{},
		Structured: []map[string]string{},
	}
	if len(rows) == 0 {
		return t
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	raw := make([]string, width)
	copy(raw, rows[0])
	t.Headers = uniqueHeaders(raw)

	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		cells := make([]string, width)
		copy(cells, row)

		record := make(map[string]string, width)
		for i, h := range t.Headers {
			record[h] = cells[i]
		}
		t.Rows = append(t.Rows, cells)
		t.Structured = append(t.Structured, record)
	}
	return t
}

func uniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = emptyHeaderName
		}
		name := h
		if n, ok := seen[h]; ok {
			name = fmt.Sprintf("%s_%d", h, n)
			seen[h] = n + 1
		} else {
			seen[h] = 1
		}
		out[i] = name
	}
	return out
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
