package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"factoryflow/internal/api"
)

// 前端开发服务器地址（开发模式下未知路由重定向到这里）
const devFrontend = "http://localhost:5173"

// shutdownTimeout 优雅关闭等待时间
const shutdownTimeout = 10 * time.Second

// Options 服务器选项
type Options struct {
	Addr    string
	DevMode bool
	Logger  *zap.Logger
}

// Server HTTP服务器
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

// NewServer 创建服务器
func NewServer(h *api.Handler, opts Options) *Server {
	if !opts.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		router: router,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes(h, opts.DevMode)
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(h *api.Handler, devMode bool) {
	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	group := s.router.Group("/api")
	{
		h.RegisterRoutes(group)
	}

	if devMode {
		// 开发模式：代理到前端开发服务器
		s.router.NoRoute(func(c *gin.Context) {
			c.Redirect(http.StatusTemporaryRedirect, devFrontend+c.Request.URL.Path)
		})
		return
	}
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "route not found"})
	})
}

// Handler 返回 http.Handler（测试用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务启动", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("正在关闭 HTTP 服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

// requestLogger 用 zap 记录每个请求
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("请求失败", fields...)
			return
		}
		logger.Debug("请求完成", fields...)
	}
}
