package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reposweep",
		Short: "按缩略图相似度清理重复的 repost",
		Long: `reposweep 读取 repost 列表（JSON / 保存的 HTML 页面 / 缩略图目录），
计算缩略图感知哈希并聚类，每个重复簇只保留一条，其余交给删除命令执行。

默认 dry-run：只输出计划，不调用删除命令，也不写任何文件。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand(stdout, stderr))
	rootCmd.AddCommand(newHashCommand(stdout))
	rootCmd.AddCommand(newCompareCommand(stdout))

	return rootCmd
}
