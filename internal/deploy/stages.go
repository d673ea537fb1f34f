package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	xerrors "MicroAI-DAO/internal/errors"
	"MicroAI-DAO/internal/solana"
	"MicroAI-DAO/internal/storage/statefile"
)

// 链上状态账户的固定出资额与空间分配，与合约端的预期一致。
const (
	accountFunding   = 1
	accountSizeBytes = 1024
)

// 各身份文件的固定名称。创建是幂等的：存在即跳过，从不轮换或删除。
const (
	governanceProgramKeyfile = "governance-program-id.json"
	membershipProgramKeyfile = "membership-program-id.json"
	governanceAccountKeyfile = "governance-account.json"
	membershipAccountKeyfile = "membership-account.json"
	execaiAccountKeyfile     = "execai-account.json"
)

// checkDependencies 校验编译工具链与 solana CLI 是否可用，缺失时尽力安装
// 并扩充 PATH。工程目录缺失是致命错误，不做任何后续动作。
func (p *Pipeline) checkDependencies(ctx context.Context) error {
	p.log.Info("检查依赖")

	if _, err := p.runner.Run(ctx, "", "rustc", "--version"); err != nil {
		p.log.Warn("未检测到 Rust 工具链，尝试安装", slog.Any("error", err))
		if _, installErr := solana.Shell(ctx, p.runner,
			"curl --proto '=https' --tlsv1.2 -sSf https://sh.rustup.rs | sh -s -- -y"); installErr != nil {
			p.log.Warn("Rust 安装失败", slog.Any("error", installErr))
		}
		if home, err := os.UserHomeDir(); err == nil {
			prependPath(filepath.Join(home, ".cargo", "bin"))
		}
	}

	if _, err := p.cli.Version(ctx); err != nil {
		p.log.Warn("未检测到 solana CLI，尝试安装", slog.Any("error", err))
		if _, installErr := solana.Shell(ctx, p.runner,
			`sh -c "$(curl -sSfL https://release.solana.com/stable/install)"`); installErr != nil {
			p.log.Warn("solana CLI 安装失败", slog.Any("error", installErr))
		}
		if home, err := os.UserHomeDir(); err == nil {
			prependPath(filepath.Join(home, ".local", "share", "solana", "install", "active_release", "bin"))
		}
	}

	if _, err := os.Stat(p.cfg.Project.Dir); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			"工程目录不存在: "+p.cfg.Project.Dir)
	}

	p.log.Info("依赖检查通过")
	return nil
}

func prependPath(dir string) {
	_ = os.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// setupNetwork 切换激活网络并按阈值策略补足余额。
// 补给失败只记日志，不阻塞流水线。
func (p *Pipeline) setupNetwork(ctx context.Context) error {
	p.log.Info("配置目标网络", slog.String("network", p.cfg.Network.Name))

	if err := p.cli.SetNetwork(ctx, p.network.URL); err != nil {
		return err
	}

	balanceOut, err := p.cli.Balance(ctx)
	if err != nil {
		return err
	}
	p.log.Info("当前余额", slog.String("balance", balanceOut))

	if !p.cfg.Network.AutoAirdrop || p.network.Production {
		return nil
	}

	needAirdrop := false
	balance, parseErr := solana.ParseBalance(balanceOut, p.network.Unit)
	if parseErr != nil {
		// 解析不了就按余额不足处理，宁可多补一笔。
		p.log.Warn("余额无法解析，按不足处理直接补给", slog.Any("error", parseErr))
		needAirdrop = true
	} else if balance < p.cfg.Network.MinBalance {
		p.log.Info("余额低于阈值，请求补给",
			slog.Float64("balance", balance),
			slog.Float64("min_balance", p.cfg.Network.MinBalance),
		)
		needAirdrop = true
	}

	if needAirdrop {
		if err := p.cli.Airdrop(ctx, p.network.AirdropAmount); err != nil {
			p.log.Error("补给请求失败", slog.Any("error", err))
		} else if newBalance, err := p.cli.Balance(ctx); err == nil {
			p.log.Info("补给后余额", slog.String("balance", newBalance))
		}
	}
	return nil
}

// ensureKeyMaterial 确保所有签名身份存在并推导公钥。
// 公钥推导失败是致命错误。
func (p *Pipeline) ensureKeyMaterial(ctx context.Context) (KeyMaterial, error) {
	p.log.Info("准备签名身份")

	keys := KeyMaterial{
		OperatorPath:          p.cfg.Keys.OperatorPath,
		ExecAIPath:            p.cfg.Keys.ExecAIPath,
		GovernanceProgramPath: filepath.Join(p.cfg.Keys.Dir, governanceProgramKeyfile),
		MembershipProgramPath: filepath.Join(p.cfg.Keys.Dir, membershipProgramKeyfile),
	}

	for _, path := range []string{
		keys.OperatorPath,
		keys.ExecAIPath,
		keys.GovernanceProgramPath,
		keys.MembershipProgramPath,
	} {
		if err := p.ensureKeypair(ctx, path); err != nil {
			return KeyMaterial{}, err
		}
	}

	var err error
	if keys.OperatorPubkey, err = p.cli.Pubkey(ctx, keys.OperatorPath); err != nil {
		return KeyMaterial{}, err
	}
	if keys.ExecAIPubkey, err = p.cli.Pubkey(ctx, keys.ExecAIPath); err != nil {
		return KeyMaterial{}, err
	}

	p.log.Info("签名身份就绪",
		slog.String("operator", keys.OperatorPubkey),
		slog.String("execai", keys.ExecAIPubkey),
	)
	return keys, nil
}

// ensureKeypair 在目标路径缺失时生成新身份，存在时原样保留。
func (p *Pipeline) ensureKeypair(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	p.log.Info("生成新身份", slog.String("path", path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建身份目录失败")
	}
	return p.cli.KeygenNew(ctx, path)
}

// buildPrograms 逐个编译两个程序。任一编译失败即中止，绝不部署半套产物。
func (p *Pipeline) buildPrograms(ctx context.Context) error {
	for _, program := range []struct {
		name string
		dir  string
	}{
		{"governance", p.cfg.Project.GovernanceDir},
		{"membership", p.cfg.Project.MembershipDir},
	} {
		dir := filepath.Join(p.cfg.Project.Dir, program.dir)
		p.log.Info("编译程序", slog.String("program", program.name), slog.String("dir", dir))
		out, err := p.runner.Run(ctx, dir, "cargo", "build-bpf")
		if err != nil {
			return err
		}
		// 退出码为零但没有任何输出说明编译没有真正发生，
		// 继续部署会把上一次的陈旧产物推上链。
		if strings.TrimSpace(out) == "" {
			return xerrors.New(xerrors.CodeToolInvocation,
				fmt.Sprintf("%s 程序编译无输出", program.name),
				xerrors.WithMetadata("dir", dir),
			)
		}
	}
	p.log.Info("程序编译完成")
	return nil
}

// deployPrograms 上传编译产物并解析分配到的程序地址。
// 两个程序都成功后立即持久化记录，再进入账户供应阶段。
func (p *Pipeline) deployPrograms(ctx context.Context, keys KeyMaterial, result Result) (Result, error) {
	govArtifact := filepath.Join(p.cfg.Project.Dir, p.cfg.Project.GovernanceDir,
		"target", "deploy", "microai_governance.so")
	memArtifact := filepath.Join(p.cfg.Project.Dir, p.cfg.Project.MembershipDir,
		"target", "deploy", "microai_membership.so")

	govID, err := p.deployOne(ctx, "governance", keys.GovernanceProgramPath, govArtifact)
	if err != nil {
		return result, err
	}
	result.GovernanceProgramID = govID

	memID, err := p.deployOne(ctx, "membership", keys.MembershipProgramPath, memArtifact)
	if err != nil {
		return result, err
	}
	result.MembershipProgramID = memID

	if err := p.persist(result); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) deployOne(ctx context.Context, name, programKeypair, artifact string) (string, error) {
	if _, err := os.Stat(artifact); err != nil {
		return "", xerrors.Wrap(xerrors.CodeMissingArtifact, err,
			fmt.Sprintf("%s 程序产物不存在", name),
			xerrors.WithMetadata("artifact", artifact),
		)
	}
	p.log.Info("部署程序", slog.String("program", name), slog.String("artifact", artifact))
	programID, err := p.cli.DeployProgram(ctx, programKeypair, artifact)
	if err != nil {
		return "", err
	}
	p.log.Info("程序部署成功", slog.String("program", name), slog.String("program_id", programID))
	return programID, nil
}

// provisionAccounts 为三个状态账户确保签名身份、推导地址并发起链上创建。
// 链上创建调用是否幂等由外部协作方决定。
func (p *Pipeline) provisionAccounts(ctx context.Context, keys KeyMaterial, result Result) (Result, error) {
	accounts := []struct {
		name    string
		keyfile string
		owner   string
		assign  func(*Result, string)
	}{
		{"governance", governanceAccountKeyfile, result.GovernanceProgramID,
			func(r *Result, addr string) { r.GovernanceAccount = addr }},
		{"membership", membershipAccountKeyfile, result.MembershipProgramID,
			func(r *Result, addr string) { r.MembershipAccount = addr }},
		{"execai", execaiAccountKeyfile, result.MembershipProgramID,
			func(r *Result, addr string) { r.ExecAIAccount = addr }},
	}

	for _, account := range accounts {
		keypairPath := filepath.Join(p.cfg.Keys.Dir, account.keyfile)
		if err := p.ensureKeypair(ctx, keypairPath); err != nil {
			return result, err
		}
		address, err := p.cli.Pubkey(ctx, keypairPath)
		if err != nil {
			return result, err
		}
		p.log.Info("创建状态账户",
			slog.String("account", account.name),
			slog.String("address", address),
			slog.String("owner", account.owner),
		)
		if err := p.cli.CreateAccount(ctx, keypairPath, address, accountFunding, accountSizeBytes, account.owner); err != nil {
			return result, err
		}
		account.assign(&result, address)
	}

	if err := p.persist(result); err != nil {
		return result, err
	}
	p.log.Info("状态账户创建完成")
	return result, nil
}

// initializePrograms 应当完成两个程序的一次性初始化并注册 EXECAI 成员。
// 链上初始化指令尚未定义，这里显式返回 NotSupported，由编排器决定处置。
func (p *Pipeline) initializePrograms(_ context.Context, _ KeyMaterial, _ Result) (StageOutcome, error) {
	return StageOutcomeNotSupported, xerrors.New(xerrors.CodeStageNotSupported,
		"程序初始化与成员注册指令尚未实现")
}

// persist 把当前结果快照写入部署状态存储。
func (p *Pipeline) persist(result Result) error {
	record := statefile.DeploymentRecord{
		GovernanceProgramID: result.GovernanceProgramID,
		MembershipProgramID: result.MembershipProgramID,
		GovernanceAccount:   result.GovernanceAccount,
		MembershipAccount:   result.MembershipAccount,
		ExecAIAccount:       result.ExecAIAccount,
		Network:             result.Network,
		LastUpdated:         time.Now().UTC(),
	}
	if err := p.store.Save(record); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存部署记录失败")
	}
	return nil
}
