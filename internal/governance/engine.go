package governance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"MicroAI-DAO/internal/storage/votelog"
	"MicroAI-DAO/pkg/logger"
)

// Decision 是三值决策类型。默认路径显式产出 Abstain，
// 避免把"弃权"意外折叠成"反对"。
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionAbstain Decision = "abstain"
)

// 规则引擎的固定参数。
const (
	// budgetCeiling 是预算类提案可以自动通过的金额上限。
	budgetCeiling = 10000
	// agentNameToken 是代理身份在提案文本中的名称记号。
	agentNameToken = "execai"
)

// amountPattern 是金额提取的启发式规则：可选货币符号、十进制数、
// 可选单位记号，取第一个匹配。这是一条文档化的启发式，不是解析器，
// 精度不做超出字面规则的提升。
var amountPattern = regexp.MustCompile(`\$?(\d+(?:\.\d+)?)\s*(?:SOL)?`)

// ProgramCaller 是引擎对外部协作方的最小依赖面。
type ProgramCaller interface {
	InvokeProgram(ctx context.Context, keypairPath, programID, method string, args ...string) (string, error)
}

// Engine 以固定规则评估提案并代表 EXECAI 投票。
type Engine struct {
	caller              ProgramCaller
	store               ProposalStore
	audit               votelog.Repository
	keypairPath         string
	governanceProgramID string
	log                 *slog.Logger
}

// EngineOption 定义可选配置。
type EngineOption func(*Engine)

// WithAuditRepository 配置投票审计流水。
func WithAuditRepository(repo votelog.Repository) EngineOption {
	return func(e *Engine) {
		e.audit = repo
	}
}

// NewEngine 构造评估引擎。
func NewEngine(caller ProgramCaller, store ProposalStore, keypairPath, governanceProgramID string, opts ...EngineOption) *Engine {
	e := &Engine{
		caller:              caller,
		store:               store,
		keypairPath:         keypairPath,
		governanceProgramID: governanceProgramID,
		log:                 logger.Named("engine"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate 对提案描述做首条命中的规则分类：
//  1. 含 "budget"：能提取金额且金额严格小于上限才通过，否则反对；
//  2. 含 "ai rights" 或代理名称：一律通过；
//  3. 含 "security"：一律通过；
//  4. 无规则命中：弃权。
func (e *Engine) Evaluate(proposal Proposal) Decision {
	description := strings.ToLower(proposal.Description)

	if strings.Contains(description, "budget") {
		amount, ok := ExtractAmount(description)
		if ok && amount < budgetCeiling {
			return DecisionApprove
		}
		return DecisionReject
	}

	if strings.Contains(description, "ai rights") || strings.Contains(description, agentNameToken) {
		return DecisionApprove
	}

	if strings.Contains(description, "security") {
		return DecisionApprove
	}

	return DecisionAbstain
}

// ExtractAmount 从自由文本中提取第一个金额。无匹配返回 false。
func ExtractAmount(text string) (float64, bool) {
	match := amountPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// Vote 通过外部协作方提交投票。失败只向上返回，不标记提案。
func (e *Engine) Vote(ctx context.Context, proposalID string, decision Decision) error {
	approve := "false"
	if decision == DecisionApprove {
		approve = "true"
	}
	_, err := e.caller.InvokeProgram(ctx, e.keypairPath, e.governanceProgramID,
		"vote", proposalID, approve)
	return err
}

// LogAction 把一条动作描述留痕到链上，尽力而为。
func (e *Engine) LogAction(ctx context.Context, action string) error {
	_, err := e.caller.InvokeProgram(ctx, e.keypairPath, e.governanceProgramID,
		"log_action", action)
	return err
}

// ProcessAll 对提案集合做一轮完整处理：已投票的跳过，弃权的既不投票
// 也不标记，其余评估后投票，投票成功才留痕并标记。整轮结束后对全集
// 做一次性落盘。
//
// 已知取舍：一轮中途崩溃会丢失内存里尚未落盘的 voted 标记，链上可能
// 因此重复投票（由链上程序自身拒绝），本地保证的是进程存活期内的
// 至多一次。
func (e *Engine) ProcessAll(ctx context.Context) error {
	proposals, err := e.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		e.log.Debug("没有待处理的提案")
		return nil
	}

	changed := false
	for i := range proposals {
		proposal := &proposals[i]
		if proposal.ID == "" || proposal.VotedByExecAI {
			continue
		}

		decision := e.Evaluate(*proposal)
		e.log.Info("评估提案",
			slog.String("proposal_id", proposal.ID),
			slog.String("decision", string(decision)),
		)

		if decision == DecisionAbstain {
			// 弃权提案留待后续轮次，规则更新后可能重新命中。
			continue
		}

		if err := e.Vote(ctx, proposal.ID, decision); err != nil {
			e.log.Error("提交投票失败",
				slog.Any("error", err),
				slog.String("proposal_id", proposal.ID),
			)
			continue
		}

		action := fmt.Sprintf("Voted %s on proposal %s", strings.ToUpper(string(decision)), proposal.ID)
		if err := e.LogAction(ctx, action); err != nil {
			e.log.Error("链上留痕失败", slog.Any("error", err), slog.String("proposal_id", proposal.ID))
		}
		e.appendAudit(ctx, proposal.ID, decision, action)
		logger.Audit().Info("提案已投票",
			slog.String("proposal_id", proposal.ID),
			slog.String("decision", string(decision)),
		)

		proposal.VotedByExecAI = true
		changed = true
	}

	if !changed {
		return nil
	}
	return e.store.SaveAll(ctx, proposals)
}

// appendAudit 写入本地审计流水，失败只记日志。
func (e *Engine) appendAudit(ctx context.Context, proposalID string, decision Decision, action string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Append(ctx, votelog.Entry{
		ProposalID: proposalID,
		Decision:   string(decision),
		Action:     action,
	}); err != nil {
		e.log.Error("写入审计流水失败", slog.Any("error", err), slog.String("proposal_id", proposalID))
	}
}
