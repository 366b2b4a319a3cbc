package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"factoryflow/internal/table"
)

// decodeOrdered 解码 JSON 并保留对象键顺序
// 对象解码为 table.Record，数组为 []any，数字为 json.Number。
func decodeOrdered(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	v, err := readValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return v, nil
}

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		rec := table.Record{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("invalid object key %v", keyTok)
			}
			v, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			rec = setField(rec, key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return rec, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// setField 重复键保留首次出现的位置，值取最后一次
func setField(rec table.Record, key string, v any) table.Record {
	for i := range rec {
		if rec[i].Key == key {
			rec[i].Value = v
			return rec
		}
	}
	return append(rec, table.Field{Key: key, Value: v})
}

// marshalOrdered 按原始键顺序序列化
func marshalOrdered(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeOrdered(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeOrdered(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case table.Record:
		buf.WriteByte('{')
		for i, f := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeOrdered(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeOrdered(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// prettyJSON 两空格缩进的完整 JSON 文本
func prettyJSON(v any) ([]byte, error) {
	compact, err := marshalOrdered(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// cellValue 行对象中的值转为单元格文本；嵌套结构保留为紧凑 JSON
func cellValue(v any) string {
	switch v.(type) {
	case table.Record, []any:
		b, err := marshalOrdered(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return table.Stringify(v)
	}
}
