package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"factoryflow/internal/logging"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

// cli 命令共享状态
type cli struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	app := &cli{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "factoryflow",
		Short: "FactoryFlow - 生产排产优化结果规范化工具",
		Long: `FactoryFlow 将订单文件提交给远端排产优化服务，
把各种形态的响应（工作簿、JSON、分隔文本、空响应）规范化为可下载的排产表，
并计算排产统计。`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose})
			if err != nil {
				return err
			}
			app.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = app.logger.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "配置文件路径（.toml / .yaml，默认可执行文件同目录 config.toml）")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(
		newServeCmd(app),
		newNormalizeCmd(app),
		newStatsCmd(app),
		newReorderCmd(app),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
