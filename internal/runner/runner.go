// Package runner sequences a payout run: duplicate check, PR parsing,
// issue gate, funding check, ledger reservation, transfer, receipt.
// Every terminal path either posts an explanation to the PR or exits
// with no action; a run never leaves a merged PR in an unexplained
// state except the two deliberate no-action exits.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gitpay/agent/internal/chain"
	"gitpay/agent/internal/escrow"
	"gitpay/agent/internal/event"
	"gitpay/agent/internal/github"
	"gitpay/agent/internal/ledger"
	"gitpay/agent/internal/parser"
)

// State names the terminal state a run ended in.
type State string

const (
	StateSkippedNotMerged State = "skipped_not_merged"
	StateSkippedDuplicate State = "skipped_duplicate"
	StateNotPaid          State = "not_paid"
	StatePaid             State = "paid"
	StatePayoutFailed     State = "payout_failed"
)

// Result reports how a run terminated. PayoutTx is set only for
// StatePaid.
type Result struct {
	State    State
	Reason   string
	PayoutTx string
}

// Collaborator interfaces. The concrete clients satisfy these; tests
// substitute fakes.

type EscrowClient interface {
	CheckFunded(ctx context.Context, owner, repo string, issueNumber int) (escrow.FundingRecord, error)
}

type GitHubClient interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (github.Issue, error)
	ListPRComments(ctx context.Context, owner, repo string, prNumber int) ([]github.Comment, error)
	PostComment(ctx context.Context, owner, repo string, prNumber int, body string) error
}

type PayoutExecutor interface {
	Execute(ctx context.Context, wallet string, amount chain.Amount) chain.Outcome
}

type Ledger interface {
	Reserve(owner, repo string, prNumber, issueNumber int, wallet string) (bool, error)
	MarkPaid(owner, repo string, prNumber int, payoutTx string) error
	MarkFailed(owner, repo string, prNumber int, reason string) error
	Release(owner, repo string, prNumber int) error
}

// Config is the policy slice of the runner: which issue label gates
// payouts (empty disables the gate) and the fallback amount when the
// escrow record does not carry one.
type Config struct {
	IssueLabel    string
	DefaultAmount string
	Asset         string
}

type Runner struct {
	cfg      Config
	parser   parser.Parser
	escrow   EscrowClient
	github   GitHubClient
	executor PayoutExecutor
	ledger   Ledger
	logger   *slog.Logger
}

func New(cfg Config, p parser.Parser, esc EscrowClient, gh GitHubClient, exec PayoutExecutor, led Ledger, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		cfg:      cfg,
		parser:   p,
		escrow:   esc,
		github:   gh,
		executor: exec,
		ledger:   led,
		logger:   logger,
	}
}

// Run executes the payout workflow for one merge event. An error return
// means the run aborted without posting a receipt (a collaborator was
// unreachable or failed); the triggering workflow may re-run it whole.
func (r *Runner) Run(ctx context.Context, ev event.MergeEvent) (Result, error) {
	if !ev.Merged || ev.PRNumber == 0 {
		r.logger.Info("pull request not merged or missing number, nothing to do")
		return Result{State: StateSkippedNotMerged}, nil
	}

	log := r.logger.With(
		"owner", ev.Owner,
		"repo", ev.Repo,
		"pr", ev.PRNumber,
	)

	comments, err := r.github.ListPRComments(ctx, ev.Owner, ev.Repo, ev.PRNumber)
	if err != nil {
		return Result{}, fmt.Errorf("listing PR comments: %w", err)
	}
	bodies := make([]string, 0, len(comments))
	for _, c := range comments {
		bodies = append(bodies, c.Body)
	}
	if ledger.AlreadyReceipted(bodies) {
		log.Info("receipt already posted, exiting")
		return Result{State: StateSkippedDuplicate}, nil
	}

	parsed, err := r.parser.Parse(ctx, ev.PRBody)
	if err != nil {
		return Result{}, fmt.Errorf("parsing PR body: %w", err)
	}
	if parsed.Wallet == "" || parsed.IssueNumber == 0 {
		reason := "PR body must include `Closes #<issue>` and a `0x...` wallet address"
		log.Info("missing wallet or linked issue", "wallet", parsed.Wallet != "", "issue", parsed.IssueNumber)
		return r.postNotPaid(ctx, ev, parsed, reason)
	}

	log = log.With("issue", parsed.IssueNumber, "wallet", parsed.Wallet)

	issue, err := r.github.GetIssue(ctx, ev.Owner, ev.Repo, parsed.IssueNumber)
	if err != nil {
		return Result{}, fmt.Errorf("fetching issue #%d: %w", parsed.IssueNumber, err)
	}
	if r.cfg.IssueLabel != "" && !issue.HasLabel(r.cfg.IssueLabel) {
		reason := fmt.Sprintf("Issue #%d is missing the `%s` label.", parsed.IssueNumber, r.cfg.IssueLabel)
		log.Info("issue missing bounty label", "label", r.cfg.IssueLabel)
		return r.postNotPaid(ctx, ev, parsed, reason)
	}

	record, err := r.escrow.CheckFunded(ctx, ev.Owner, ev.Repo, parsed.IssueNumber)
	if err != nil {
		return Result{}, fmt.Errorf("checking escrow funding for issue #%d: %w", parsed.IssueNumber, err)
	}
	if !record.Funded {
		log.Info("issue not funded in escrow")
		return r.postNotPaid(ctx, ev, parsed, fmt.Sprintf("Issue #%d is not funded in x402 escrow.", parsed.IssueNumber))
	}

	amount := r.authorizedAmount(record, issue)
	log.Info("funding verified, executing payout",
		"escrow_tx", record.EscrowTxHash,
		"amount", amount.String(),
	)

	reserved, err := r.ledger.Reserve(ev.Owner, ev.Repo, ev.PRNumber, parsed.IssueNumber, parsed.Wallet)
	if err != nil {
		return Result{}, fmt.Errorf("reserving payout ledger entry: %w", err)
	}
	if !reserved {
		log.Info("payout already reserved or recorded in local ledger, exiting")
		return Result{State: StateSkippedDuplicate}, nil
	}

	outcome := r.executor.Execute(ctx, parsed.Wallet, amount)
	switch o := outcome.(type) {
	case chain.Success:
		return r.finishPaid(ctx, ev, parsed, record, o.TxHash, log)
	case chain.DryRun:
		log.Info("dry run payout", "tx", o.TxHash)
		return r.finishPaid(ctx, ev, parsed, record, o.TxHash, log)
	case chain.Failure:
		return r.finishFailed(ctx, ev, parsed, o, log)
	default:
		return Result{}, fmt.Errorf("unhandled payout outcome %T", outcome)
	}
}

// authorizedAmount picks the payout amount. The escrow record's funded
// amount is the source of truth when present; otherwise a bounty stated
// in the issue title, then the configured default.
func (r *Runner) authorizedAmount(record escrow.FundingRecord, issue github.Issue) chain.Amount {
	if record.AmountBaseUnits > 0 {
		return chain.FromBaseUnits(record.AmountBaseUnits, r.cfg.Asset)
	}
	if bounty := parser.FindBounty(issue.Title); bounty != nil && strings.EqualFold(bounty.Asset, r.cfg.Asset) {
		return chain.FromDecimal(bounty.Value, bounty.Asset)
	}
	return chain.FromDecimal(r.cfg.DefaultAmount, r.cfg.Asset)
}

func (r *Runner) finishPaid(ctx context.Context, ev event.MergeEvent, parsed parser.Request, record escrow.FundingRecord, txHash string, log *slog.Logger) (Result, error) {
	if err := r.ledger.MarkPaid(ev.Owner, ev.Repo, ev.PRNumber, txHash); err != nil {
		// The transfer happened; the receipt must still be posted.
		log.Error("recording paid entry in local ledger failed", "error", err)
	}
	receipt := ledger.Receipt{
		Status:       ledger.StatusPaid,
		IssueNumber:  parsed.IssueNumber,
		Wallet:       parsed.Wallet,
		EscrowTxHash: record.EscrowTxHash,
		PayoutTxHash: txHash,
	}
	if err := r.github.PostComment(ctx, ev.Owner, ev.Repo, ev.PRNumber, receipt.Render()); err != nil {
		// Funds moved but the receipt did not land. The ledger row is
		// the surviving record; surface the error for reconciliation.
		log.Error("payout succeeded but posting receipt failed", "tx", txHash, "error", err)
		return Result{State: StatePaid, PayoutTx: txHash}, fmt.Errorf("posting paid receipt: %w", err)
	}
	log.Info("receipt posted", "tx", txHash)
	return Result{State: StatePaid, PayoutTx: txHash}, nil
}

func (r *Runner) finishFailed(ctx context.Context, ev event.MergeEvent, parsed parser.Request, failure chain.Failure, log *slog.Logger) (Result, error) {
	if errors.Is(failure.Err, chain.ErrUnreachable) {
		// Nothing was submitted. Free the reservation and abort without
		// posting a receipt the next run would trip over.
		if err := r.ledger.Release(ev.Owner, ev.Repo, ev.PRNumber); err != nil {
			log.Error("releasing ledger reservation failed", "error", err)
		}
		return Result{}, fmt.Errorf("payout aborted, chain unreachable: %w", failure.Err)
	}

	reason := failure.Reason
	if failure.Err != nil {
		reason = fmt.Sprintf("%s: %v", failure.Reason, failure.Err)
	}
	log.Error("payout failed", "reason", reason)

	// The submission's fate may be unknown (sent but unconfirmed), so
	// the reservation stays, marked failed, until an operator clears it.
	if err := r.ledger.MarkFailed(ev.Owner, ev.Repo, ev.PRNumber, reason); err != nil {
		log.Error("recording failed entry in local ledger failed", "error", err)
	}

	receipt := ledger.Receipt{
		Status:      ledger.StatusNotPaid,
		IssueNumber: parsed.IssueNumber,
		Wallet:      parsed.Wallet,
		Reason:      "Payout failed: " + failure.Reason + ". Funds were not confirmed as transferred.",
	}
	if err := r.github.PostComment(ctx, ev.Owner, ev.Repo, ev.PRNumber, receipt.Render()); err != nil {
		log.Error("posting failure receipt failed", "error", err)
	}
	return Result{State: StatePayoutFailed, Reason: reason}, nil
}

func (r *Runner) postNotPaid(ctx context.Context, ev event.MergeEvent, parsed parser.Request, reason string) (Result, error) {
	receipt := ledger.Receipt{
		Status:      ledger.StatusNotPaid,
		IssueNumber: parsed.IssueNumber,
		Wallet:      parsed.Wallet,
		Reason:      reason,
	}
	if err := r.github.PostComment(ctx, ev.Owner, ev.Repo, ev.PRNumber, receipt.Render()); err != nil {
		return Result{}, fmt.Errorf("posting not-paid receipt: %w", err)
	}
	return Result{State: StateNotPaid, Reason: reason}, nil
}
