package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/reposweep/internal/domain"
)

// Executor 执行一次删除（撤销 repost）。
//
// 约束：
// - 每次调用只处理一条 RemovalPlan
// - 不做重试/限速（由上层统一控制）
// - ctx 取消时应尽快返回
type Executor interface {
	Remove(ctx context.Context, p domain.RemovalPlan) error
}

const defaultTimeout = 60 * time.Second

// 命令输出在错误信息中保留的最大长度。
const maxOutput = 512

// Command 对每条记录调用一次外部命令完成删除（例如浏览器自动化脚本）。
//
// Argv 中的占位符 {id} {url} {creator} 会被替换为记录字段；
// 同时通过环境变量 REPOSWEEP_ID / REPOSWEEP_URL / REPOSWEEP_CREATOR 传入。
// 退出码非 0 视为失败。
type Command struct {
	Argv    []string
	Timeout time.Duration
	// Env 追加到当前进程环境变量之后。
	Env []string
}

// CommandError 表示删除命令失败（非 0 退出码或被超时终止）。
type CommandError struct {
	Argv     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	msg := fmt.Sprintf("删除命令 %s 失败", name)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf("（exit=%d）", e.ExitCode)
	}
	if e.Err != nil {
		msg += "：" + e.Err.Error()
	}
	if e.Output != "" {
		msg += "：" + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Validate 检查命令配置是否可用（argv 非空，且可执行文件存在）。
func (c Command) Validate() error {
	if len(c.Argv) == 0 || strings.TrimSpace(c.Argv[0]) == "" {
		return errors.New("executor.command 不能为空")
	}
	if _, err := exec.LookPath(c.Argv[0]); err != nil {
		return fmt.Errorf("executor.command 不可执行：%w", err)
	}
	return nil
}

func (c Command) Remove(ctx context.Context, p domain.RemovalPlan) error {
	if len(c.Argv) == 0 {
		return errors.New("executor.command 不能为空")
	}
	if strings.TrimSpace(p.RecordID) == "" {
		return errors.New("record id 不能为空")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := Expand(c.Argv, p)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env,
		"REPOSWEEP_ID="+p.RecordID,
		"REPOSWEEP_URL="+p.URL,
		"REPOSWEEP_CREATOR="+p.Creator,
		"REPOSWEEP_REASON="+p.Reason,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// 子进程被终止后，孙进程可能仍持有输出管道。
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}

	ce := &CommandError{Argv: argv, ExitCode: -1, Output: trimOutput(out.String())}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		ce.ExitCode = ee.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		ce.Err = ctxErr
	} else if ce.ExitCode < 0 {
		ce.Err = err
	}
	return ce
}

// Expand 替换 argv 中的占位符（不经过 shell，字段内容不会被解释）。
func Expand(argv []string, p domain.RemovalPlan) []string {
	r := strings.NewReplacer(
		"{id}", p.RecordID,
		"{url}", p.URL,
		"{creator}", p.Creator,
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		// 只保留末尾；起点对齐到字符边界，避免截断多字节字符。
		i := len(s) - maxOutput
		for i < len(s) && !utf8.RuneStart(s[i]) {
			i++
		}
		s = s[i:]
	}
	return s
}
