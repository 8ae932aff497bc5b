package main

import (
	"log"
	"os"
	"path/filepath"

	"survey_marking_backend/internal/app"
	"survey_marking_backend/internal/config"
	"survey_marking_backend/pkg/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigDir string
	Migrate   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "survey-marking",
		Short: "问卷答卷可见性计算与评分服务",
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "configs", "配置文件目录")
	cmd.PersistentFlags().BoolVar(&opts.Migrate, "migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWorkerCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

func loadConfig(opts *rootOptions) *config.Config {
	cfg, err := config.LoadConfig(opts.ConfigDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ForceMigrate = opts.Migrate
	return cfg
}

func configFile(opts *rootOptions) string {
	return filepath.Join(opts.ConfigDir, "config.yaml")
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		Run: func(cmd *cobra.Command, args []string) {
			application := app.NewApp(loadConfig(opts))
			defer logger.Log.Sync()
			application.ConfigPath = configFile(opts)
			application.Run()
		},
	}
}

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "消费评分任务队列",
		RunE: func(cmd *cobra.Command, args []string) error {
			worker := app.NewWorker(loadConfig(opts))
			defer logger.Log.Sync()
			worker.ConfigPath = configFile(opts)
			return worker.RunWorker()
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "只执行数据库迁移，完成后退出",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(opts)
			// 设置迁移标志
			cfg.ForceMigrate = true
			cfg.MigrateOnly = true
			app.NewApp(cfg)
			defer logger.Log.Sync()
			log.Println("数据库迁移完成，退出程序")
		},
	}
}
