// Package plans 计划工作流：上传订单 -> 远端优化 -> 规范化 -> 统计 -> 持久化，以及查询、分组、下载、删除。
package plans

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"factoryflow/internal/normalize"
	"factoryflow/internal/optimizer"
	"factoryflow/internal/stats"
	"factoryflow/internal/store"
	"factoryflow/internal/table"
	"factoryflow/internal/workbook"
)

// 上传限制默认值
const (
	DefaultMaxUploadBytes int64 = 10 * 1024 * 1024
	planNameSuffix              = " - Optimized"
)

// DefaultExtensions 允许上传的扩展名
var DefaultExtensions = []string{".csv", ".xlsx", ".xls"}

// Optimizer 远端优化服务
type Optimizer interface {
	Optimize(ctx context.Context, uploads []optimizer.Upload) (*normalize.Artifact, error)
}

// Options 服务配置
type Options struct {
	MaxUploadBytes int64
	Extensions     []string
	Logger         *zap.Logger
	// Now 仅用于测试注入时间
	Now func() time.Time
}

// Service 计划服务
type Service struct {
	meta      store.MetadataStore
	blobs     store.BlobStore
	optimizer Optimizer

	extractor  *workbook.Extractor
	aggregator *stats.Aggregator
	normalizer *normalize.Normalizer
	logger     *zap.Logger

	maxBytes   int64
	extensions []string
	now        func() time.Time
}

// NewService 创建计划服务
func NewService(meta store.MetadataStore, blobs store.BlobStore, opt Optimizer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		meta:       meta,
		blobs:      blobs,
		optimizer:  opt,
		extractor:  workbook.NewExtractor(logger),
		aggregator: stats.NewAggregator(logger),
		normalizer: normalize.New(logger),
		logger:     logger,
		maxBytes:   maxBytes,
		extensions: exts,
		now:        now,
	}
}

// MaxUploadBytes 单个文件大小上限
func (s *Service) MaxUploadBytes() int64 { return s.maxBytes }

// ValidateUpload 校验单个上传文件
func (s *Service) ValidateUpload(u optimizer.Upload) error {
	if u.Name == "" {
		return fmt.Errorf("%w: No file selected", ErrInvalidFile)
	}
	lower := strings.ToLower(u.Name)
	accepted := false
	for _, ext := range s.extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			accepted = true
			break
		}
	}
	if !accepted {
		return fmt.Errorf("%w: Only CSV and Excel files are accepted", ErrInvalidFile)
	}
	if int64(len(u.Data)) > s.maxBytes {
		return fmt.Errorf("%w: File size must be less than %s", ErrInvalidFile, formatBytes(s.maxBytes))
	}
	if len(u.Data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidFile, u.Name)
	}
	return nil
}

// PlanName 计划名：首个文件去掉扩展名 + " - Optimized"
func PlanName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base)) + planNameSuffix
}

// Create 上传订单文件并保存优化结果
// 远端错误原样返回（optimizer.ErrTimeout / *optimizer.StatusError / *optimizer.TransportError）；
// 存储失败返回 ErrSaveFailed。统计失败不影响保存。
func (s *Service) Create(ctx context.Context, uploads []optimizer.Upload) (*store.Plan, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: No file selected", ErrInvalidFile)
	}
	for _, u := range uploads {
		if err := s.ValidateUpload(u); err != nil {
			return nil, err
		}
	}

	artifact, err := s.optimizer.Optimize(ctx, uploads)
	if err != nil {
		return nil, err
	}

	first := uploads[0]
	plan := store.Plan{
		ID:                uuid.New().String(),
		Name:              PlanName(first.Name),
		UploadDate:        s.now().UTC(),
		OriginalFilename:  filepath.Base(first.Name),
		OptimizedFilename: artifact.Filename,
		DeliveryStatus:    string(artifact.Delivery),
		Stats:             s.artifactStats(artifact),
	}

	if err := s.save(plan, store.Blobs{
		OriginalPayload:      first.Data,
		OriginalContentType:  first.ContentType(),
		OptimizedPayload:     artifact.Payload,
		OptimizedContentType: artifact.ContentType,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("计划已保存",
		zap.String("id", plan.ID),
		zap.String("name", plan.Name),
		zap.String("optimized", plan.OptimizedFilename),
		zap.Bool("hasStats", plan.Stats != nil))
	return &plan, nil
}

func (s *Service) save(plan store.Plan, blobs store.Blobs) error {
	if err := s.blobs.PutBlobs(plan.ID, blobs); err != nil {
		s.logger.Error("保存计划文件失败", zap.String("id", plan.ID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := s.meta.Put(plan); err != nil {
		s.logger.Error("保存计划元数据失败", zap.String("id", plan.ID), zap.Error(err))
		if derr := s.blobs.DeleteBlobs(plan.ID); derr != nil {
			s.logger.Warn("清理计划文件失败", zap.String("id", plan.ID), zap.Error(derr))
		}
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

// artifactStats 从产物第一张表计算统计；JSON 兜底产物没有表格数据
func (s *Service) artifactStats(a *normalize.Artifact) *stats.Stats {
	if !a.Tabular() {
		return nil
	}
	t, ok := s.extractor.FirstTable(a.ContentType, a.Payload)
	if !ok {
		s.logger.Warn("优化结果无法解析为表格，跳过统计", zap.String("filename", a.Filename))
		return nil
	}
	return s.aggregator.Compute(t)
}

// List 全部计划（上传时间倒序）
func (s *Service) List() ([]store.Plan, error) {
	plans, err := s.meta.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// MonthGroup 同一月份上传的计划
type MonthGroup struct {
	Label string       `json:"label"`
	Plans []store.Plan `json:"plans"`
}

// Grouped 按 "Month YYYY" 分组，组与组内顺序沿用列表顺序
func (s *Service) Grouped() ([]MonthGroup, error) {
	plans, err := s.List()
	if err != nil {
		return nil, err
	}
	return GroupByMonth(plans), nil
}

// GroupByMonth 按上传月份分组
func GroupByMonth(plans []store.Plan) []MonthGroup {
	groups := []MonthGroup{}
	pos := make(map[string]int)
	for _, p := range plans {
		label := MonthLabel(p.UploadDate)
		i, ok := pos[label]
		if !ok {
			i = len(groups)
			pos[label] = i
			groups = append(groups, MonthGroup{Label: label})
		}
		groups[i].Plans = append(groups[i].Plans, p)
	}
	return groups
}

// MonthLabel 例如 "March 2026"
func MonthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", t.Month().String(), t.Year())
}

// Detail 计划详情
type Detail struct {
	Plan   store.Plan    `json:"plan"`
	Sheets []table.Table `json:"sheets"`
	Stats  *stats.Stats  `json:"stats"`
	// Tabular 为 false 表示优化结果不是表格（JSON 兜底），前端不应按表格展示
	Tabular bool `json:"tabular"`
}

// Detail 读取计划元数据、优化结果的全部 Sheet 与统计
func (s *Service) Detail(id string) (*Detail, error) {
	plan, err := s.meta.Get(id)
	if err != nil {
		return nil, err
	}
	blobs, err := s.blobs.GetBlobs(id)
	if err != nil {
		return nil, err
	}

	d := &Detail{Plan: plan, Sheets: []table.Table{}, Stats: plan.Stats}
	if isTabular(plan.OptimizedFilename) {
		d.Tabular = true
		d.Sheets = s.extractor.Tables(blobs.OptimizedContentType, blobs.OptimizedPayload)
	}
	if d.Stats == nil && len(d.Sheets) > 0 {
		d.Stats = s.aggregator.Compute(d.Sheets[0])
	}
	return d, nil
}

// Dashboard 最新计划的统计
type Dashboard struct {
	Plan  *store.Plan  `json:"plan"`
	Stats *stats.Stats `json:"stats"`
	Total int          `json:"totalPlans"`
}

// DashboardStats 最新计划的统计（优先使用快照，否则重新计算）；没有计划时 Plan 为 nil
func (s *Service) DashboardStats() (*Dashboard, error) {
	plans, err := s.List()
	if err != nil {
		return nil, err
	}
	out := &Dashboard{Total: len(plans)}
	if len(plans) == 0 {
		return out, nil
	}

	latest := plans[0]
	out.Plan = &latest
	out.Stats = latest.Stats
	if out.Stats != nil || !isTabular(latest.OptimizedFilename) {
		return out, nil
	}

	blobs, err := s.blobs.GetBlobs(latest.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("最新计划缺少文件", zap.String("id", latest.ID))
			return out, nil
		}
		return nil, err
	}
	if t, ok := s.extractor.FirstTable(blobs.OptimizedContentType, blobs.OptimizedPayload); ok {
		out.Stats = s.aggregator.Compute(t)
	}
	return out, nil
}

// Delete 删除计划元数据与文件
func (s *Service) Delete(id string) error {
	if _, err := s.meta.Get(id); err != nil {
		return err
	}
	if err := s.meta.Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := s.blobs.DeleteBlobs(id); err != nil {
		s.logger.Warn("删除计划文件失败", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	s.logger.Info("计划已删除", zap.String("id", id))
	return nil
}

// Preview 只做规范化与统计，不调用远端也不保存（调试原始响应用）
type Preview struct {
	Artifact *normalize.Artifact `json:"artifact"`
	Shape    string              `json:"shape"`
	Sheets   []table.Table       `json:"sheets"`
	Stats    *stats.Stats        `json:"stats"`
}

// Preview 对一份保存下来的远端响应做规范化
func (s *Service) Preview(resp normalize.Response) (*Preview, error) {
	a, err := s.normalizer.Normalize(resp)
	if err != nil {
		return nil, err
	}
	p := &Preview{Artifact: a, Shape: a.Shape.String(), Sheets: []table.Table{}}
	if a.Tabular() {
		p.Sheets = s.extractor.Tables(a.ContentType, a.Payload)
		if len(p.Sheets) > 0 {
			p.Stats = s.aggregator.Compute(p.Sheets[0])
		}
	}
	return p, nil
}

func isTabular(filename string) bool {
	return !strings.HasSuffix(strings.ToLower(filename), ".json")
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
