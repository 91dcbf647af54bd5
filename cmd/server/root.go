package main

import (
	"context"
	"fmt"

	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X main.version=..." 注入
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "photorelay",
		Short:         "Watch photo pages and relay new images to Alist",
		SilenceUsage: true,
		// 不带子命令时等同 serve
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
)

// Execute 运行根命令
func Execute() error {
	// .env 不存在时直接使用进程环境变量
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./configs/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(tasksCommand())
	rootCmd.AddCommand(historyCommand())
	rootCmd.AddCommand(versionCommand())
}

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.Options{
		Level:     cfg.Log.Level,
		Output:    cfg.Log.Output,
		Format:    cfg.Log.Format,
		FilePath:  cfg.Log.FilePath,
		Colorize:  cfg.Log.Colorize,
		AddSource: cfg.Log.AddSource,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "photorelay %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}
