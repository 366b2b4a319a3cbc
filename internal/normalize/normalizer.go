// Package normalize 将远端优化服务的原始响应统一转换为可存储、可下载的表格产物。
//
// 远端返回的形态不受控制：工作簿二进制、若干种 JSON 信封、裸分隔文本或空响应。
// 形态只在入口判定一次（Shape），之后按形态分支处理；任何分支都必须产出非空载荷。
package normalize

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"factoryflow/internal/sniff"
	"factoryflow/internal/table"
)

// 默认文件名
const (
	SpreadsheetFilename = "optimized_schedule.xlsx"
	DelimitedFilename   = "optimized_schedule.csv"
	JSONFilename        = "optimized_schedule.json"
)

// 产物 MIME 类型
const (
	spreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	delimitedContentType   = "text/csv"
	jsonContentType        = "application/json"
)

// PlaceholderHeaders 空响应时占位表的表头（与订单表结构一致）
var PlaceholderHeaders = []string{"code", "item_number", "description", "colour", "material", "quantity"}

// PlaceholderRow 占位表唯一的哨兵数据行
var PlaceholderRow = []string{"NO_DATA", "0", "No data returned", "", "", ""}

// 可能承载表格数据的 JSON 字段（按优先级）
var payloadKeys = []string{"csv", "data", "output", "result"}

// 投递状态字段
var deliveryKeys = []string{"delivery_status", "n8n_delivery", "delivery", "notification"}

var (
	sentPattern    = regexp.MustCompile(`(?i)\bsent\b`)
	notSentPattern = regexp.MustCompile(`(?i)\b(not|never)\s+sent\b`)

	dispositionFilename = regexp.MustCompile(`filename[^;=\n]*=("[^"]*"|'[^']*'|[^;\n]*)`)
)

// Shape 响应形态
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeSpreadsheet
	ShapeJSON
	ShapeDelimited
)

func (s Shape) String() string {
	switch s {
	case ShapeSpreadsheet:
		return "spreadsheet"
	case ShapeJSON:
		return "json"
	case ShapeDelimited:
		return "delimited"
	default:
		return "empty"
	}
}

// DeliveryStatus 结果投递状态（远端是否已发送通知）
type DeliveryStatus string

const (
	DeliveryUnknown DeliveryStatus = "unknown"
	DeliverySent    DeliveryStatus = "sent"
)

// Response 远端原始响应：响应头 + 未读取的响应体
type Response struct {
	Header http.Header
	Body   io.Reader
}

// FromHTTP 从 http.Response 构造
func FromHTTP(resp *http.Response) Response {
	return Response{Header: resp.Header, Body: resp.Body}
}

// Artifact 规范化后的产物
type Artifact struct {
	Payload     []byte         `json:"-"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"contentType"`
	Delivery    DeliveryStatus `json:"deliveryStatus"`
	Shape       Shape          `json:"-"`
}

// Tabular 载荷是否可按表格解析（JSON 兜底产物不可）
func (a *Artifact) Tabular() bool {
	return !strings.HasSuffix(strings.ToLower(a.Filename), ".json")
}

// Normalizer 响应规范化器
type Normalizer struct {
	logger *zap.Logger
}

// New 创建规范化器
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize 读取响应体并产出规范化产物
// 只有读取响应体失败才返回错误；无法识别的内容一律在本地降级处理。
func (n *Normalizer) Normalize(resp Response) (*Artifact, error) {
	header := resp.Header
	if header == nil {
		header = http.Header{}
	}
	body := resp.Body
	if body == nil {
		body = strings.NewReader("")
	}

	contentType := header.Get("Content-Type")
	prefix, reader := sniff.Peek(body)

	if sniff.Classify(contentType, prefix) == sniff.SpreadsheetBinary {
		// 二进制分支不能做文本解码
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read spreadsheet body: %w", err)
		}
		if len(data) > 0 {
			return n.spreadsheet(header, data), nil
		}
		n.logger.Warn("工作簿响应为空，按无数据处理")
		return n.placeholder(), nil
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return n.NormalizeText(table.StripBOM(string(raw))), nil
}

// NormalizeText 规范化文本响应体（JSON / 分隔文本 / 空）
func (n *Normalizer) NormalizeText(text string) *Artifact {
	shape, root := classifyText(text)

	switch shape {
	case ShapeEmpty:
		n.logger.Warn("收到空响应，生成占位数据")
		return n.placeholder()
	case ShapeDelimited:
		n.logger.Warn("响应不是 JSON，按分隔文本处理")
		return &Artifact{
			Payload:     []byte(text),
			Filename:    DelimitedFilename,
			ContentType: delimitedContentType,
			Delivery:    DeliveryUnknown,
			Shape:       ShapeDelimited,
		}
	default:
		return n.envelope(root)
	}
}

// classifyText 文本响应的形态判定
func classifyText(text string) (Shape, any) {
	if strings.TrimSpace(text) == "" {
		return ShapeEmpty, nil
	}
	root, err := decodeOrdered(text)
	if err != nil {
		return ShapeDelimited, nil
	}
	return ShapeJSON, root
}

func (n *Normalizer) spreadsheet(header http.Header, data []byte) *Artifact {
	contentType := header.Get("Content-Type")
	if ct := strings.ToLower(contentType); !strings.Contains(ct, "sheet") && !strings.Contains(ct, "excel") {
		contentType = spreadsheetContentType
	}
	return &Artifact{
		Payload:     data,
		Filename:    FilenameFromDisposition(header.Get("Content-Disposition"), SpreadsheetFilename),
		ContentType: contentType,
		Delivery:    DeliveryUnknown,
		Shape:       ShapeSpreadsheet,
	}
}

func (n *Normalizer) placeholder() *Artifact {
	return &Artifact{
		Payload:     []byte(table.EncodeRows(PlaceholderHeaders, [][]string{PlaceholderRow})),
		Filename:    DelimitedFilename,
		ContentType: delimitedContentType,
		Delivery:    DeliveryUnknown,
		Shape:       ShapeEmpty,
	}
}

// envelope 在 JSON 中定位表格数据
func (n *Normalizer) envelope(root any) *Artifact {
	delivery := deliveryStatus(root)

	text, found, sawEmpty := resolveTabular(root)
	switch {
	case found:
		return &Artifact{
			Payload:     []byte(text),
			Filename:    DelimitedFilename,
			ContentType: delimitedContentType,
			Delivery:    delivery,
			Shape:       ShapeJSON,
		}
	case sawEmpty:
		n.logger.Warn("JSON 响应中的数据为空，生成占位数据")
		a := n.placeholder()
		a.Delivery = delivery
		return a
	}

	n.logger.Warn("无法从 JSON 响应中识别表格数据", zap.Strings("keys", topLevelKeys(root)))
	pretty, err := prettyJSON(root)
	if err != nil {
		// 已成功解码的值不会序列化失败，此处仅兜底
		pretty = []byte("null")
	}
	return &Artifact{
		Payload:     pretty,
		Filename:    JSONFilename,
		ContentType: jsonContentType,
		Delivery:    delivery,
		Shape:       ShapeJSON,
	}
}

// looksDelimited 字符串载荷至少含一个逗号或换行才视为分隔文本（"success" 之类的状态字不算）
func looksDelimited(s string) bool {
	return strings.ContainsAny(strings.TrimSpace(s), ",\n")
}

// resolveTabular 按优先级探测表格数据：
// 识别字段中的字符串 > 识别字段中的数组（或根即数组）> 识别字段中对象内的数组 > 任意顶层数组字段。
// sawEmpty 表示探测到了形态正确但没有数据的载荷。
func resolveTabular(root any) (text string, found bool, sawEmpty bool) {
	if arr, ok := root.([]any); ok {
		if csv, ok := encodeArray(arr); ok {
			return csv, true, false
		}
		return "", false, true
	}

	rec, ok := root.(table.Record)
	if !ok {
		return "", false, false
	}

	for _, key := range payloadKeys {
		v, ok := rec.Get(key)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			switch {
			case strings.TrimSpace(s) == "":
				sawEmpty = true
			case looksDelimited(s):
				return s, true, false
			}
		}
	}

	for _, key := range payloadKeys {
		v, _ := rec.Get(key)
		if arr, ok := v.([]any); ok {
			if csv, ok := encodeArray(arr); ok {
				return csv, true, false
			}
			sawEmpty = true
		}
	}

	for _, key := range payloadKeys {
		v, _ := rec.Get(key)
		if nested, ok := v.(table.Record); ok {
			if csv, ok, empty := firstArray(nested); ok {
				return csv, true, false
			} else if empty {
				sawEmpty = true
			}
		}
	}

	if csv, ok, empty := firstArray(rec); ok {
		return csv, true, false
	} else if empty {
		sawEmpty = true
	}
	return "", false, sawEmpty
}

// firstArray 按键顺序找到第一个能编码出数据的数组字段
func firstArray(rec table.Record) (string, bool, bool) {
	sawEmpty := false
	for _, f := range rec {
		arr, ok := f.Value.([]any)
		if !ok {
			continue
		}
		if csv, ok := encodeArray(arr); ok {
			return csv, true, false
		}
		sawEmpty = true
	}
	return "", false, sawEmpty
}

// encodeArray 数组编码为分隔文本
// 元素为对象时首个对象的键作为表头；元素为数组时首个数组作为表头；其它元素忽略。
func encodeArray(arr []any) (string, bool) {
	records := make([]table.Record, 0, len(arr))
	var matrix [][]string
	for _, item := range arr {
		switch x := item.(type) {
		case table.Record:
			row := make(table.Record, len(x))
			for i, f := range x {
				row[i] = table.Field{Key: f.Key, Value: cellValue(f.Value)}
			}
			records = append(records, row)
		case []any:
			cells := make([]string, len(x))
			for i, c := range x {
				cells[i] = cellValue(c)
			}
			matrix = append(matrix, cells)
		}
	}

	if len(records) > 0 && len(records[0]) > 0 {
		return table.Encode(records), true
	}
	if len(matrix) > 1 {
		headers := matrix[0]
		rows := make([][]string, 0, len(matrix)-1)
		for _, cells := range matrix[1:] {
			row := make([]string, len(headers))
			copy(row, cells)
			rows = append(rows, row)
		}
		return table.EncodeRows(headers, rows), true
	}
	return "", false
}

// deliveryStatus 读取顶层投递状态字段
func deliveryStatus(root any) DeliveryStatus {
	rec, ok := root.(table.Record)
	if !ok {
		return DeliveryUnknown
	}
	for _, key := range deliveryKeys {
		v, ok := rec.Get(key)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if sentPattern.MatchString(s) && !notSentPattern.MatchString(s) {
			return DeliverySent
		}
	}
	return DeliveryUnknown
}

// FilenameFromDisposition 从 Content-Disposition 提取文件名，失败返回 fallback
func FilenameFromDisposition(disposition, fallback string) string {
	if disposition == "" {
		return fallback
	}

	name := ""
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		name = params["filename"]
	}
	if name == "" {
		if m := dispositionFilename.FindStringSubmatch(disposition); m != nil {
			name = strings.NewReplacer(`"`, "", `'`, "").Replace(m[1])
		}
	}

	name = strings.Trim(strings.TrimSpace(name), `"'`)
	// 去除路径部分，避免 ../ 之类的名字
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}

func topLevelKeys(root any) []string {
	if rec, ok := root.(table.Record); ok {
		return rec.Keys()
	}
	return nil
}
