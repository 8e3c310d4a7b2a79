// Package ledger guards the at-most-one-payout-per-PR invariant and
// renders the receipt comment that records the outcome. Two guards work
// together: a scan of the PR's existing comments (the audit trail lives
// on the PR itself) and a local SQLite ledger reserved transactionally
// before any funds move.
package ledger

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPaid    Status = "Paid"
	StatusNotPaid Status = "Not Paid"
)

// Markers looked for by the duplicate scan. A comment carrying both the
// header and a transaction marker is a paid receipt; not-paid receipts
// deliberately omit the transaction marker so they never block a later
// legitimate payout.
const (
	receiptHeader = "GitPay Receipt"
	txMarker      = "Tx:"
)

// Receipt is the posted record of what happened to a PR's bounty.
type Receipt struct {
	Status       Status
	IssueNumber  int
	Wallet       string
	EscrowTxHash string
	PayoutTxHash string
	Reason       string // set only when Status is Not Paid
}

// Render produces the Markdown comment body. The fixed header and tx
// markers are load-bearing: IsReceipt matches on them.
func (r Receipt) Render() string {
	var b strings.Builder
	if r.Status == StatusPaid {
		b.WriteString("✅ " + receiptHeader + "\n\n")
	} else {
		b.WriteString("❌ " + receiptHeader + "\n\n")
	}
	b.WriteString("Status: " + string(r.Status) + "\n")
	if r.IssueNumber > 0 {
		fmt.Fprintf(&b, "Issue: #%d\n", r.IssueNumber)
	}
	if r.Wallet != "" {
		fmt.Fprintf(&b, "Wallet: `%s`\n", r.Wallet)
	}
	if r.Status == StatusPaid {
		if r.EscrowTxHash != "" {
			fmt.Fprintf(&b, "Escrow %s `%s`\n", txMarker, r.EscrowTxHash)
		}
		if r.PayoutTxHash != "" {
			fmt.Fprintf(&b, "Payout %s `%s`\n", txMarker, r.PayoutTxHash)
		}
	}
	if r.Reason != "" {
		b.WriteString("Reason: " + r.Reason + "\n")
	}
	return b.String()
}

// IsReceipt reports whether an existing comment body is a paid receipt.
func IsReceipt(body string) bool {
	return strings.Contains(body, receiptHeader) && strings.Contains(body, txMarker)
}

// AlreadyReceipted scans existing PR comment bodies for a paid receipt.
// Best-effort textual guard; the SQLite reservation closes the window
// this scan leaves open between check and post.
func AlreadyReceipted(bodies []string) bool {
	for _, body := range bodies {
		if IsReceipt(body) {
			return true
		}
	}
	return false
}
