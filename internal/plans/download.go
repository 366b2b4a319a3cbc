package plans

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"factoryflow/internal/reorder"
	"factoryflow/internal/sniff"
	"factoryflow/internal/table"
	"factoryflow/internal/workbook"
)

const delimitedContentType = "text/csv"

// Variant 下载哪一份文件
type Variant string

const (
	VariantOptimized Variant = "optimized"
	VariantOriginal  Variant = "original"
)

// ParseVariant 空串视为 optimized
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case "", VariantOptimized:
		return VariantOptimized, nil
	case VariantOriginal:
		return VariantOriginal, nil
	default:
		return "", fmt.Errorf("%w: unknown variant %q", ErrInvalidOption, s)
	}
}

// DownloadOptions 下载选项
type DownloadOptions struct {
	Variant Variant
	// Reorder 按展示顺序重排列（工作簿只重排第一个 Sheet）
	Reorder bool
	// Format 为 "xlsx" 时把分隔文本转换为工作簿；为 "csv" 时把工作簿第一个 Sheet 转为分隔文本
	Format string
}

// File 待下载的文件
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Download 返回计划文件；JSON 兜底产物忽略重排与格式转换
func (s *Service) Download(id string, opts DownloadOptions) (*File, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "" && format != "xlsx" && format != "csv" {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidOption, opts.Format)
	}

	plan, err := s.meta.Get(id)
	if err != nil {
		return nil, err
	}
	blobs, err := s.blobs.GetBlobs(id)
	if err != nil {
		return nil, err
	}

	var f File
	switch opts.Variant {
	case VariantOriginal:
		f = File{Filename: plan.OriginalFilename, ContentType: blobs.OriginalContentType, Data: blobs.OriginalPayload}
	case VariantOptimized, "":
		f = File{Filename: plan.OptimizedFilename, ContentType: blobs.OptimizedContentType, Data: blobs.OptimizedPayload}
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", ErrInvalidOption, opts.Variant)
	}
	if f.ContentType == "" {
		f.ContentType = "application/octet-stream"
	}

	if !isTabular(f.Filename) {
		return &f, nil
	}

	spreadsheet := sniff.IsSpreadsheetBlob(f.ContentType, f.Data)
	if format == "csv" && spreadsheet {
		if err := s.convertToDelimited(&f, opts.Reorder); err != nil {
			return nil, err
		}
		return &f, nil
	}

	if opts.Reorder {
		if spreadsheet {
			if err := s.reorderWorkbook(&f); err != nil {
				return nil, err
			}
		} else {
			f.Data = []byte(reorder.ReorderText(string(f.Data)))
		}
	}

	if format == "xlsx" && !spreadsheet {
		if err := s.convertToWorkbook(&f, plan.Name); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

func (s *Service) reorderWorkbook(f *File) error {
	sheets := s.extractor.ExtractSheets(f.Data)
	if len(sheets) == 0 {
		s.logger.Warn("工作簿无法解析，按原样下载", zap.String("filename", f.Filename))
		return nil
	}
	sheets[0] = reorder.Reorder(sheets[0])

	data, err := workbook.Write(sheets)
	if err != nil {
		return fmt.Errorf("failed to write reordered workbook: %w", err)
	}
	f.Data = data
	f.ContentType = workbook.ContentType
	f.Filename = withExt(f.Filename, ".xlsx")
	return nil
}

func (s *Service) convertToWorkbook(f *File, sheetName string) error {
	t := table.NewDecoder(s.logger).Decode(string(f.Data))
	t.Name = strings.TrimSuffix(sheetName, planNameSuffix)
	if t.Name == "" {
		t.Name = table.DefaultName
	}

	data, err := workbook.Write([]table.Table{t})
	if err != nil {
		return fmt.Errorf("failed to convert to workbook: %w", err)
	}
	f.Data = data
	f.ContentType = workbook.ContentType
	f.Filename = withExt(f.Filename, ".xlsx")
	return nil
}

// convertToDelimited 工作簿只取第一个 Sheet
func (s *Service) convertToDelimited(f *File, reorderColumns bool) error {
	t, ok := s.extractor.FirstTable(f.ContentType, f.Data)
	if !ok {
		return fmt.Errorf("%w: workbook %s has no readable sheet", ErrInvalidOption, f.Filename)
	}
	if reorderColumns {
		t = reorder.Reorder(t)
	}
	f.Data = []byte(t.Text())
	f.ContentType = delimitedContentType
	f.Filename = withExt(f.Filename, ".csv")
	return nil
}

func withExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
