package solana

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	xerrors "MicroAI-DAO/internal/errors"
)

// programIDMarker 是 deploy 输出中携带程序地址的行前缀。
const programIDMarker = "Program Id:"

// CLI 封装 solana 命令行协作方的各项逻辑操作。
// 每个方法都是一次阻塞的子进程调用，输出按文本约定解析。
type CLI struct {
	runner Runner
	binary string
	keygen string
}

// Option 定义可选配置。
type Option func(*CLI)

// WithRunner 替换命令执行器，测试时注入假实现。
func WithRunner(runner Runner) Option {
	return func(c *CLI) {
		if runner != nil {
			c.runner = runner
		}
	}
}

// NewCLI 创建 CLI 协作方封装。
func NewCLI(opts ...Option) *CLI {
	c := &CLI{
		runner: NewExecRunner(),
		binary: "solana",
		keygen: "solana-keygen",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Version 查询 solana CLI 版本，用于依赖检测。
func (c *CLI) Version(ctx context.Context) (string, error) {
	return c.runner.Run(ctx, "", c.binary, "--version")
}

// SetNetwork 切换当前激活的网络。
func (c *CLI) SetNetwork(ctx context.Context, url string) error {
	_, err := c.runner.Run(ctx, "", c.binary, "config", "set", "--url", url)
	return err
}

// Balance 查询当前身份的余额，返回原始文本输出。
func (c *CLI) Balance(ctx context.Context) (string, error) {
	return c.runner.Run(ctx, "", c.binary, "balance")
}

// Airdrop 请求一笔测试网补给。
func (c *CLI) Airdrop(ctx context.Context, amount float64) error {
	_, err := c.runner.Run(ctx, "", c.binary, "airdrop", strconv.FormatFloat(amount, 'f', -1, 64))
	return err
}

// KeygenNew 生成一个无口令的新身份并写入指定路径。
func (c *CLI) KeygenNew(ctx context.Context, outPath string) error {
	_, err := c.runner.Run(ctx, "", c.keygen, "new", "--no-passphrase", "--outfile", outPath)
	return err
}

// Pubkey 推导身份文件对应的公钥地址。
func (c *CLI) Pubkey(ctx context.Context, keypairPath string) (string, error) {
	out, err := c.runner.Run(ctx, "", c.keygen, "pubkey", keypairPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CreateAccount 在链上创建由指定程序持有的状态账户。
// 该调用自身是否幂等由外部协作方决定，这里不做重复检查。
func (c *CLI) CreateAccount(ctx context.Context, keypairPath, address string, funding float64, sizeBytes int, ownerProgramID string) error {
	_, err := c.runner.Run(ctx, "", c.binary, "create-account",
		"--keypair", keypairPath,
		address,
		strconv.FormatFloat(funding, 'f', -1, 64),
		strconv.Itoa(sizeBytes),
		ownerProgramID,
	)
	return err
}

// DeployProgram 部署编译产物并解析分配到的程序地址。
// 输出中缺少 "Program Id:" 标记时返回 DEPLOY_PARSE_FAILED，不做猜测与重试。
func (c *CLI) DeployProgram(ctx context.Context, programKeypair, artifactPath string) (string, error) {
	out, err := c.runner.Run(ctx, "", c.binary, "program", "deploy",
		"--program-id", programKeypair,
		artifactPath,
	)
	if err != nil {
		return "", err
	}
	programID, ok := ParseProgramID(out)
	if !ok {
		return "", xerrors.New(xerrors.CodeDeployParse,
			fmt.Sprintf("部署输出缺少 %q 标记", programIDMarker),
			xerrors.WithMetadata("artifact", artifactPath),
		)
	}
	return programID, nil
}

// InvokeProgram 以指定身份调用已部署程序的方法。
func (c *CLI) InvokeProgram(ctx context.Context, keypairPath, programID, method string, args ...string) (string, error) {
	cmdArgs := append([]string{"program", "call", "--keypair", keypairPath, programID, method}, args...)
	return c.runner.Run(ctx, "", c.binary, cmdArgs...)
}

// ParseProgramID 从部署输出中提取程序地址。
func ParseProgramID(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, programIDMarker); idx >= 0 {
			id := strings.TrimSpace(line[idx+len(programIDMarker):])
			if id != "" {
				return id, true
			}
		}
	}
	return "", false
}

// ParseBalance 按余额解析约定处理查询输出：输出包含原生单位时，取第一个
// 空白分隔的 token 作为十进制数量；单位缺失或数字不可解析时返回
// UNPARSEABLE_BALANCE，调用方应走保守的"直接补给"路径。
func ParseBalance(output, unit string) (float64, error) {
	if !strings.Contains(output, unit) {
		return 0, xerrors.New(xerrors.CodeUnparseableBalance,
			"余额输出不含原生单位 "+unit,
			xerrors.WithMetadata("output", output),
		)
	}
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return 0, xerrors.New(xerrors.CodeUnparseableBalance, "余额输出为空")
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeUnparseableBalance, err,
			"余额数值解析失败",
			xerrors.WithMetadata("token", fields[0]),
		)
	}
	return value, nil
}
