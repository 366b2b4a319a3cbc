// Package api 计划相关的 HTTP 接口。
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"factoryflow/internal/optimizer"
	"factoryflow/internal/plans"
	"factoryflow/internal/store"
)

// 业务错误码
const (
	codeOK          = 0
	codeBadRequest  = 1001
	codeInvalidFile = 1002
	codeNotFound    = 4004
	codeSaveFailed  = 5001
	codeInternal    = 5002
	codeUpstream    = 5021
	codeNetwork     = 5022
	codeTimeout     = 5041
)

// Handler API 处理器
type Handler struct {
	plans  *plans.Service
	status StatusInfo
	logger *zap.Logger
}

// StatusInfo /api/status 返回的静态信息
type StatusInfo struct {
	Version      string `json:"version"`
	OptimizerURL string `json:"optimizerUrl"`
	DataDir      string `json:"dataDir"`
}

// NewHandler 创建处理器
func NewHandler(svc *plans.Service, status StatusInfo, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{plans: svc, status: status, logger: logger}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)
	router.GET("/dashboard", h.GetDashboard)

	// 计划
	router.POST("/plans", h.CreatePlan)
	router.GET("/plans", h.ListPlans)
	router.GET("/plans/grouped", h.GroupedPlans)
	router.GET("/plans/:id", h.GetPlan)
	router.DELETE("/plans/:id", h.DeletePlan)
	router.GET("/plans/:id/download", h.DownloadPlan)

	// 调试：对保存下来的远端响应做规范化
	router.POST("/normalize", h.Normalize)
}

// Response 通用响应
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    codeOK,
		Message: "success",
		Data:    data,
	})
}

func errorResponse(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

// writeError 将服务层错误映射为 HTTP 状态与业务码
func (h *Handler) writeError(c *gin.Context, err error) {
	var statusErr *optimizer.StatusError
	var transportErr *optimizer.TransportError

	switch {
	case errors.Is(err, optimizer.ErrTimeout):
		errorResponse(c, http.StatusGatewayTimeout, codeTimeout, optimizer.TimeoutMessage)
	case errors.As(err, &statusErr):
		errorResponse(c, http.StatusBadGateway, codeUpstream, statusErr.Error())
	case errors.As(err, &transportErr):
		errorResponse(c, http.StatusBadGateway, codeNetwork, transportErr.Error())
	case errors.Is(err, plans.ErrInvalidFile), errors.Is(err, plans.ErrInvalidOption):
		errorResponse(c, http.StatusBadRequest, codeInvalidFile, err.Error())
	case errors.Is(err, store.ErrNotFound):
		errorResponse(c, http.StatusNotFound, codeNotFound, "计划不存在")
	case errors.Is(err, plans.ErrSaveFailed):
		errorResponse(c, http.StatusInsufficientStorage, codeSaveFailed, plans.ErrSaveFailed.Error())
	default:
		h.logger.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, codeInternal, "内部错误")
	}
}
