package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"factoryflow/internal/optimizer"
	"factoryflow/internal/plans"
)

// 上传字段名（与远端优化服务一致）
const uploadField = "files"

// CreatePlan 上传订单并生成计划
// POST /api/plans
func (h *Handler) CreatePlan(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		errorResponse(c, http.StatusBadRequest, codeBadRequest, "无效的表单数据")
		return
	}

	files := form.File[uploadField]
	if len(files) == 0 {
		// 兼容单文件字段
		files = form.File["file"]
	}
	if len(files) == 0 {
		errorResponse(c, http.StatusBadRequest, codeInvalidFile, "No file selected")
		return
	}

	uploads := make([]optimizer.Upload, 0, len(files))
	for _, fh := range files {
		u, err := readUpload(fh, h.plans.MaxUploadBytes())
		if err != nil {
			errorResponse(c, http.StatusBadRequest, codeInvalidFile, "读取文件失败")
			return
		}
		uploads = append(uploads, u)
	}

	plan, err := h.plans.Create(c.Request.Context(), uploads)
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, plan)
}

// readUpload 最多读取 limit+1 字节，超限由服务层校验报错
func readUpload(fh *multipart.FileHeader, limit int64) (optimizer.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return optimizer.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return optimizer.Upload{}, err
	}
	return optimizer.Upload{Name: fh.Filename, Data: data}, nil
}

// ListPlans 计划列表（最新在前）
// GET /api/plans
func (h *Handler) ListPlans(c *gin.Context) {
	list, err := h.plans.List()
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, list)
}

// GroupedPlans 按月份分组的计划
// GET /api/plans/grouped
func (h *Handler) GroupedPlans(c *gin.Context) {
	groups, err := h.plans.Grouped()
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, groups)
}

// GetPlan 计划详情
// GET /api/plans/:id
func (h *Handler) GetPlan(c *gin.Context) {
	detail, err := h.plans.Detail(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, detail)
}

// DeletePlan 删除计划
// DELETE /api/plans/:id
func (h *Handler) DeletePlan(c *gin.Context) {
	id := c.Param("id")
	if err := h.plans.Delete(id); err != nil {
		h.writeError(c, err)
		return
	}
	success(c, gin.H{"id": id})
}

// DownloadPlan 下载原始文件或优化结果
// GET /api/plans/:id/download?variant=optimized|original&reorder=true&format=xlsx
func (h *Handler) DownloadPlan(c *gin.Context) {
	variant, err := plans.ParseVariant(c.Query("variant"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	reorder, _ := strconv.ParseBool(c.DefaultQuery("reorder", "false"))

	file, err := h.plans.Download(c.Param("id"), plans.DownloadOptions{
		Variant: variant,
		Reorder: reorder,
		Format:  c.Query("format"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Debug("下载计划文件",
		zap.String("id", c.Param("id")),
		zap.String("variant", string(variant)),
		zap.String("filename", file.Filename))

	c.Header("Content-Disposition", contentDisposition(file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// GetDashboard 最新计划的统计
// GET /api/dashboard
func (h *Handler) GetDashboard(c *gin.Context) {
	dash, err := h.plans.DashboardStats()
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, dash)
}

// contentDisposition 同时给出 ASCII 兜底名与 UTF-8 编码名
func contentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", fallback, url.PathEscape(filename))
}
