package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/reposweep/internal/app/run"
	"github.com/John-Robertt/reposweep/internal/config"
	"github.com/John-Robertt/reposweep/internal/domain"
	"github.com/John-Robertt/reposweep/internal/infra/cache"
	"github.com/John-Robertt/reposweep/internal/logging"
)

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		threshold  float64
		mode       string
		apply      bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "run [source]",
		Short: "运行完整流程（默认 dry-run）",
		Long: `source 可以是记录 JSON 文件、保存的 repost 页面（.html）或缩略图目录；
未指定时读取配置文件中的 source。

stdout 不是终端时只输出一个 RunReport JSON；进度与日志写到 stderr。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				ConfigPath: configPath,
				LogLevel:   logLevel,
			}
			if len(args) == 1 {
				cli.Source = args[0]
			}
			flags := cmd.Flags()
			if flags.Changed("threshold") {
				cli.Threshold, cli.ThresholdSet = threshold, true
			}
			if flags.Changed("mode") {
				cli.Mode, cli.ModeSet = mode, true
			}
			if flags.Changed("apply") {
				cli.Apply, cli.ApplySet = apply, true
			}
			return runPipeline(cmd.Context(), cli, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "配置文件路径（默认自动发现 ./reposweep.json 或 ./reposweep.toml）")
	flags.Float64Var(&threshold, "threshold", config.DefaultThreshold, "相似度阈值 [0,1]：距离 <= 1-threshold 视为重复")
	flags.StringVar(&mode, "mode", config.DefaultMode, "duplicates：只删重复簇的非 keeper；all：删除全部 repost")
	flags.BoolVar(&apply, "apply", false, "真正执行删除并写入 cache/（支持 --apply=false 覆盖配置）")
	flags.StringVar(&logLevel, "log-level", "", "日志级别：debug|info|warn|error")

	return cmd
}

func runPipeline(ctx context.Context, cli config.CLIArgs, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return failed(fmt.Errorf("读取当前目录失败：%w", err))
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(stdout, stderr, reportForConfigError(cwdAbs, cli, err))
		return &exitError{code: 1}
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)

	// 交互模式下进度 UI 已覆盖 info 级信息；未显式指定时只保留 warn 以上日志。
	level := eff.LogLevel
	if interactive && level == "" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: eff.LogFormat, Writer: stderr})
	if err != nil {
		return failed(err)
	}
	ctx = logging.WithContext(ctx, logger)

	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, run.Deps{Logger: logger}, obs)

	emitReport(stdout, stderr, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 {
		return nil
	}
	return &exitError{code: 1}
}

func reportForConfigError(cwdAbs string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Source:     cli.Source,
		WorkDir:    cwdAbs,
		DryRun:     !(cli.ApplySet && cli.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Cluster:   -1,
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", cache.New(eff.WorkDir, true).ReportPath())
	}
}
