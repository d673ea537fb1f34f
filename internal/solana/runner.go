package solana

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	xerrors "MicroAI-DAO/internal/errors"
	"MicroAI-DAO/pkg/logger"
)

// Runner 抽象外部命令的执行方式，便于在测试中替换为假实现。
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner 通过 os/exec 阻塞执行子进程，是生产环境的默认实现。
// 子进程不设置单独超时，挂起的外部工具会一直占住调用方。
type ExecRunner struct{}

// NewExecRunner 创建默认执行器。
func NewExecRunner() ExecRunner { return ExecRunner{} }

// Run 执行命令并返回去除首尾空白的标准输出。
// 子进程退出码非零时返回 TOOL_INVOCATION_FAILED，并携带 stderr 信息。
func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	logger.L().Debug("执行外部命令",
		slog.String("command", name),
		slog.String("args", strings.Join(args, " ")),
		slog.String("dir", dir),
	)

	command := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		command.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeToolInvocation, err,
			"外部命令执行失败: "+name,
			xerrors.WithMetadata("stderr", strings.TrimSpace(stderr.String())),
		)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Shell 以 sh -c 的方式执行一段脚本，用于依赖的尽力安装。
func Shell(ctx context.Context, runner Runner, script string) (string, error) {
	return runner.Run(ctx, "", "sh", "-c", script)
}

var _ Runner = ExecRunner{}
