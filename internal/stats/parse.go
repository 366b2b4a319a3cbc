package stats

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ParseIntPrefix 取字符串开头的整数部分（"12 pcs" -> 12，"5.7" -> 5），无法解析返回 0
func ParseIntPrefix(s string) int {
	m := intPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	i, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return i
}

// ParseFloatPrefix 取字符串开头的数值部分（"45.5min" -> 45.5），无法解析返回 0
func ParseFloatPrefix(s string) float64 {
	m := floatPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
