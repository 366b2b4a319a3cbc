package table

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encode 将行对象序列化为分隔文本
// 首行对象的键作为表头；字段含逗号、双引号或换行时加引号，内部双引号加倍。
// 行之间以 \n 连接，不带结尾换行。
func Encode(records []Record) string {
	if len(records) == 0 {
		return ""
	}

	headers := records[0].Keys()
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := rec.Get(h); ok {
				row[i] = Stringify(v)
			}
		}
		rows = append(rows, row)
	}
	return EncodeRows(headers, rows)
}

// EncodeRows 按给定表头与行序列化
func EncodeRows(headers []string, rows [][]string) string {
	var b strings.Builder
	writeLine(&b, headers)
	for _, row := range rows {
		b.WriteByte('\n')
		writeLine(&b, row)
	}
	return b.String()
}

// Text 表的分隔文本表示
func (t Table) Text() string {
	if len(t.Headers) == 0 {
		return ""
	}
	return EncodeRows(t.Headers, t.Rows)
}

func writeLine(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(EscapeField(f))
	}
}

// EscapeField 按 RFC4180 风格转义单个字段
func EscapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Stringify 将标量转为字符串（nil 视为空串）
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// Decoder 分隔文本解析器
type Decoder struct {
	logger *zap.Logger
}

// NewDecoder 创建解析器，logger 为 nil 时不输出日志
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode 使用默认解析器解析分隔文本
func Decode(text string) Table {
	return NewDecoder(nil).Decode(text)
}

// Decode 解析分隔文本为逻辑表
// 第一条非空行作为表头，其余为数据行，字段均去除首尾空白；只含空白的行忽略。
// 字段数多于表头的行视为格式错误，记录日志后跳过；字段不足的行补空串。
// 引号直到文本末尾都未闭合时只丢弃该引号所在的物理行，后续行照常解析。
// 空文本或只有表头时返回无数据行的表。
func (d *Decoder) Decode(text string) Table {
	t := Table{Name: DefaultName, Rows: [][]string{}}

	text = StripBOM(text)
	if strings.TrimSpace(text) == "" {
		return t
	}

	s := &recordScanner{text: text, line: 1}
	for {
		rec, ok := s.next()
		if !ok {
			break
		}
		if rec.unterminated {
			d.logger.Warn("跳过引号未闭合的行", zap.Int("line", rec.line))
			continue
		}
		if strings.TrimSpace(rec.raw) == "" {
			continue
		}

		fields := rec.fields
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		if t.Headers == nil {
			t.Headers = fields
			continue
		}

		if len(fields) > len(t.Headers) {
			d.logger.Warn("跳过列数异常的行",
				zap.Int("line", rec.line),
				zap.Int("fields", len(fields)),
				zap.Int("headers", len(t.Headers)))
			continue
		}
		for len(fields) < len(t.Headers) {
			fields = append(fields, "")
		}
		t.Rows = append(t.Rows, fields)
	}

	if t.Headers == nil {
		t.Headers = []string{}
	}
	return t
}

// rawRecord 一条逻辑记录（可能跨越多个物理行）
type rawRecord struct {
	fields []string
	raw    string
	line   int
	// unterminated 引号到文本末尾仍未闭合
	unterminated bool
}

// recordScanner 按记录切分分隔文本
// 字段以双引号开头时，引号内的逗号、换行（含 \r\n）都属于字段内容，"" 表示一个双引号；
// 其余位置的双引号按普通字符处理。记录以 \n 结束，行尾的 \r 由调用方去空白时去掉。
type recordScanner struct {
	text string
	pos  int
	line int
}

func (s *recordScanner) next() (rawRecord, bool) {
	if s.pos >= len(s.text) {
		return rawRecord{}, false
	}

	start := s.pos
	rec := rawRecord{line: s.line}
	var field strings.Builder
	i := start

	for {
		// 引号前允许有空白
		j := i
		for j < len(s.text) && (s.text[j] == ' ' || s.text[j] == '\t') {
			j++
		}
		if j < len(s.text) && s.text[j] == '"' {
			k, closed := scanQuoted(s.text, j+1, &field)
			if !closed {
				s.skipLine(start)
				return rawRecord{line: rec.line, raw: s.text[start:s.pos], unterminated: true}, true
			}
			i = k
		}

		for i < len(s.text) && s.text[i] != ',' && s.text[i] != '\n' {
			field.WriteByte(s.text[i])
			i++
		}
		rec.fields = append(rec.fields, field.String())
		field.Reset()

		if i < len(s.text) && s.text[i] == ',' {
			i++
			continue
		}
		if i < len(s.text) {
			i++ // \n
		}
		s.pos = i
		rec.raw = s.text[start:i]
		s.line += strings.Count(rec.raw, "\n")
		return rec, true
	}
}

// scanQuoted 读取引号内的内容，返回闭合引号之后的位置
func scanQuoted(text string, i int, field *strings.Builder) (int, bool) {
	for i < len(text) {
		c := text[i]
		if c == '"' {
			if i+1 < len(text) && text[i+1] == '"' {
				field.WriteByte('"')
				i += 2
				continue
			}
			return i + 1, true
		}
		field.WriteByte(c)
		i++
	}
	return i, false
}

// skipLine 跳到 start 所在物理行的下一行
func (s *recordScanner) skipLine(start int) {
	if n := strings.IndexByte(s.text[start:], '\n'); n >= 0 {
		s.pos = start + n + 1
		s.line++
		return
	}
	s.pos = len(s.text)
}

// StripBOM 去除 UTF-8/UTF-16 BOM（Excel 导出的 CSV 常带 BOM）
func StripBOM(text string) string {
	out, _, err := transform.String(unicode.BOMOverride(unicode.UTF8.NewDecoder()), text)
	if err != nil {
		return text
	}
	return out
}
