package ledger

import (
	"strings"
	"testing"
)

func TestRenderPaid(t *testing.T) {
	r := Receipt{
		Status:       StatusPaid,
		IssueNumber:  42,
		Wallet:       "0x1111111111111111111111111111111111111111",
		EscrowTxHash: "0xescrow",
		PayoutTxHash: "0xpayout",
	}
	body := r.Render()

	for _, want := range []string{
		"✅ GitPay Receipt",
		"Status: Paid",
		"Issue: #42",
		"Wallet: `0x1111111111111111111111111111111111111111`",
		"Escrow Tx: `0xescrow`",
		"Payout Tx: `0xpayout`",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered receipt missing %q:\n%s", want, body)
		}
	}
	if !IsReceipt(body) {
		t.Error("paid receipt not recognized by its own scan")
	}
}

func TestRenderNotPaidOmitsTxMarker(t *testing.T) {
	r := Receipt{
		Status:      StatusNotPaid,
		IssueNumber: 42,
		Reason:      "Issue #42 is not funded in x402 escrow.",
	}
	body := r.Render()

	if !strings.Contains(body, "❌ GitPay Receipt") {
		t.Errorf("missing header:\n%s", body)
	}
	if !strings.Contains(body, "Reason: Issue #42 is not funded") {
		t.Errorf("missing reason:\n%s", body)
	}
	// A not-paid receipt must never match the paid-receipt scan, or it
	// would block a later legitimate payout.
	if IsReceipt(body) {
		t.Errorf("not-paid receipt matches the paid scan:\n%s", body)
	}
}

func TestAlreadyReceipted(t *testing.T) {
	tests := []struct {
		name   string
		bodies []string
		want   bool
	}{
		{
			name:   "paid receipt present",
			bodies: []string{"nice work!", "✅ GitPay Receipt\n\nStatus: Paid\nPayout Tx: `0xabc`"},
			want:   true,
		},
		{
			name:   "header without tx marker",
			bodies: []string{"❌ GitPay Receipt\n\nStatus: Not Paid\nReason: not funded"},
			want:   false,
		},
		{
			name:   "tx marker without header",
			bodies: []string{"deployed, Tx: 0xabc"},
			want:   false,
		},
		{
			name:   "no comments",
			bodies: nil,
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AlreadyReceipted(tt.bodies); got != tt.want {
				t.Errorf("AlreadyReceipted = %v, want %v", got, tt.want)
			}
		})
	}
}
