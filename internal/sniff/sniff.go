// Package sniff 判定远端返回载荷的格式：工作簿二进制还是分隔文本。
//
// 判定顺序：先看 MIME 提示，再看二进制签名。签名检查只 Peek，不消费读取器。
package sniff

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Kind 载荷类别
type Kind int

const (
	DelimitedText Kind = iota
	SpreadsheetBinary
)

func (k Kind) String() string {
	switch k {
	case SpreadsheetBinary:
		return "spreadsheet"
	default:
		return "delimited"
	}
}

// PrefixLen 签名检查需要的前缀长度
const PrefixLen = 8

var (
	// zip 容器（xlsx）
	zipSignature = []byte{0x50, 0x4B, 0x03, 0x04}
	// OLE 复合文档（xls）
	cfbSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// 响应头中表示工作簿二进制的关键词
var binaryTypeHints = []string{"spreadsheet", "excel", "openxml", "octet-stream"}

// 存储 Blob 的类型提示不包含 octet-stream：浏览器上传的 CSV 也可能是该类型
var blobTypeHints = []string{"spreadsheet", "excel", "openxml"}

// Classify 根据 Content-Type 与载荷前缀判定类别
func Classify(contentType string, prefix []byte) Kind {
	if containsAny(contentType, binaryTypeHints) {
		return SpreadsheetBinary
	}
	if HasSpreadsheetSignature(prefix) {
		return SpreadsheetBinary
	}
	return DelimitedText
}

// IsSpreadsheetBlob 判断已存储的载荷是否为工作簿（用于统计与展示）
func IsSpreadsheetBlob(contentType string, data []byte) bool {
	if containsAny(contentType, blobTypeHints) {
		return true
	}
	return HasSpreadsheetSignature(data)
}

// HasSpreadsheetSignature 检查 xlsx / xls 文件签名
func HasSpreadsheetSignature(prefix []byte) bool {
	return bytes.HasPrefix(prefix, zipSignature) || bytes.HasPrefix(prefix, cfbSignature)
}

// Peek 读取前 PrefixLen 字节而不消费；返回包装后的读取器供后续完整读取
func Peek(r io.Reader) ([]byte, *bufio.Reader) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	// 不足 PrefixLen 时 Peek 返回已有字节与 EOF，按已有字节判定即可
	prefix, _ := br.Peek(PrefixLen)
	return prefix, br
}

func containsAny(contentType string, hints []string) bool {
	ct := strings.ToLower(contentType)
	for _, h := range hints {
		if strings.Contains(ct, h) {
			return true
		}
	}
	return false
}
