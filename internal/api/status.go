package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"factoryflow/internal/normalize"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	StatusInfo
	TotalPlans int    `json:"totalPlans"`
	LatestPlan string `json:"latestPlan,omitempty"`
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{StatusInfo: h.status}

	list, err := h.plans.List()
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp.TotalPlans = len(list)
	if len(list) > 0 {
		resp.LatestPlan = list[0].Name
	}
	success(c, resp)
}

// Normalize 对上传的原始响应体做规范化，不保存
// POST /api/normalize  表单字段：body（文件）、contentType、disposition
func (h *Handler) Normalize(c *gin.Context) {
	fh, err := c.FormFile("body")
	if err != nil {
		errorResponse(c, http.StatusBadRequest, codeBadRequest, "请上传响应体文件")
		return
	}
	f, err := fh.Open()
	if err != nil {
		errorResponse(c, http.StatusBadRequest, codeBadRequest, "读取文件失败")
		return
	}
	defer f.Close()

	header := http.Header{}
	if ct := c.PostForm("contentType"); ct != "" {
		header.Set("Content-Type", ct)
	}
	if cd := c.PostForm("disposition"); cd != "" {
		header.Set("Content-Disposition", cd)
	}

	preview, err := h.plans.Preview(normalize.Response{
		Header: header,
		Body:   io.LimitReader(f, h.plans.MaxUploadBytes()),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, preview)
}
