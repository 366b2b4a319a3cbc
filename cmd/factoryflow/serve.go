package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"factoryflow/internal/api"
	"factoryflow/internal/config"
	"factoryflow/internal/optimizer"
	"factoryflow/internal/plans"
	"factoryflow/internal/server"
	"factoryflow/internal/store"
	"factoryflow/internal/util"
)

type serveFlags struct {
	port    int
	devMode bool
	dataDir string
	open    bool
}

func newServeCmd(app *cli) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, app, f)
		},
	}

	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "服务端口（配置文件显式指定 port 时以配置为准）")
	cmd.Flags().BoolVar(&f.devMode, "dev", false, "开发模式")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "数据目录（覆盖配置文件）")
	cmd.Flags().BoolVar(&f.open, "open", false, "启动后打开浏览器")
	return cmd
}

func runServe(ctx context.Context, app *cli, f serveFlags) error {
	logger := app.logger

	cfg, info, err := config.Load(app.configPath)
	if err != nil {
		return err
	}
	if info.Found {
		logger.Info("已加载配置", zap.String("path", info.Path))
	}

	// 命令行参数覆盖配置
	if f.port > 0 && !info.PortSpecified {
		cfg.Server.Port = f.port
	}
	if f.devMode {
		cfg.Server.DevMode = true
	}
	if f.dataDir != "" {
		cfg.Data.DataDir = f.dataDir
	}

	if !info.PortSpecified && f.port == 0 {
		port, err := util.FindAvailablePort("", cfg.Server.Port, 20)
		if err != nil {
			return err
		}
		if port != cfg.Server.Port {
			logger.Warn("默认端口被占用，改用其他端口", zap.Int("from", cfg.Server.Port), zap.Int("to", port))
		}
		cfg.Server.Port = port
	}

	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logger.Info("数据目录", zap.String("dir", dataDir))

	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("关闭存储失败", zap.Error(err))
		}
	}()

	client := optimizer.New(cfg.Optimizer.URL,
		optimizer.WithTimeout(cfg.Optimizer.Timeout.Std()),
		optimizer.WithFieldName(cfg.Optimizer.FieldName),
		optimizer.WithLogger(logger))
	defer client.Close()

	svc := plans.NewService(st, st, client, plans.Options{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Extensions:     cfg.Upload.Extensions,
		Logger:         logger,
	})
	handler := api.NewHandler(svc, api.StatusInfo{
		Version:      version,
		OptimizerURL: client.URL(),
		DataDir:      dataDir,
	}, logger)

	srv := server.NewServer(handler, server.Options{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		DevMode: cfg.Server.DevMode,
		Logger:  logger,
	})

	url := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if f.open && !cfg.Server.DevMode {
		g.Go(func() error {
			if err := util.OpenBrowserWithFallback(url); err != nil {
				logger.Warn("无法自动打开浏览器，请手动访问", zap.String("url", url), zap.Error(err))
			}
			return nil
		})
	}

	logger.Info("服务已启动，按 Ctrl+C 停止", zap.String("url", url), zap.String("optimizer", client.URL()))
	return g.Wait()
}
