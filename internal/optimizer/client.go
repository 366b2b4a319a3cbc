// Package optimizer 调用远端排产优化服务，并把响应交给 normalize 规范化。
package optimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"factoryflow/internal/normalize"
)

// 默认配置
const (
	DefaultURL       = "https://wood-scheduler.onrender.com/optimize"
	DefaultTimeout   = 3 * time.Minute
	DefaultFieldName = "files"
)

// Upload 待优化的订单文件
type Upload struct {
	Name string
	Data []byte
}

// ContentType 根据扩展名推断上传文件的 MIME 类型
func (u Upload) ContentType() string {
	switch strings.ToLower(filepath.Ext(u.Name)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	default:
		return "application/octet-stream"
	}
}

// Client 远端优化服务客户端
type Client struct {
	url        string
	fieldName  string
	timeout    time.Duration
	httpClient *http.Client
	normalizer *normalize.Normalizer
	logger     *zap.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换默认 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout 设置整个请求（含读取响应体）的时限
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFieldName 设置 multipart 文件字段名
func WithFieldName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.fieldName = name
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New 创建客户端，url 为空时使用默认地址
func New(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:        url,
		fieldName:  DefaultFieldName,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.normalizer = normalize.New(c.logger)
	return c
}

// URL 远端地址
func (c *Client) URL() string { return c.url }

// Close 释放空闲连接
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Optimize 上传文件并返回规范化后的产物
// 超时返回 ErrTimeout；非 2xx 返回 *StatusError；网络失败返回 *TransportError。
func (c *Client) Optimize(ctx context.Context, uploads []Upload) (*normalize.Artifact, error) {
	if len(uploads) == 0 {
		return nil, errors.New("no files to optimize")
	}

	body, contentType, err := c.encodeForm(uploads)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create optimizer request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	c.logger.Info("提交优化请求",
		zap.String("url", c.url),
		zap.Int("files", len(uploads)),
		zap.Int("bytes", body.Len()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("优化服务返回错误状态", zap.Int("status", resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode, Reason: reasonPhrase(resp)}
	}

	artifact, err := c.normalizer.Normalize(normalize.FromHTTP(resp))
	if err != nil {
		return nil, c.classify(ctx, "read response", err)
	}

	c.logger.Info("优化完成",
		zap.String("shape", artifact.Shape.String()),
		zap.String("filename", artifact.Filename),
		zap.String("delivery", string(artifact.Delivery)),
		zap.Duration("elapsed", time.Since(started)))
	return artifact, nil
}

func (c *Client) encodeForm(uploads []Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.fieldName, filepath.Base(u.Name)))
		h.Set("Content-Type", u.ContentType())
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form part for %s: %w", u.Name, err)
		}
		if _, err := part.Write(u.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write form part for %s: %w", u.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// classify 区分超时与一般网络失败
func (c *Client) classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("优化请求超时", zap.Duration("timeout", c.timeout))
		return ErrTimeout
	}
	c.logger.Error("优化请求失败", zap.String("op", op), zap.Error(err))
	return &TransportError{Op: op, Err: err}
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}
