package parser

import (
	"context"
	"regexp"
)

// Request is what a payout run learns from PR text alone: where to send
// funds, which issue the work closes, and (optionally) a bounty amount
// spotted in the text. Absent fields stay zero; extraction never invents
// values.
type Request struct {
	Wallet      string
	IssueNumber int
	Bounty      *Bounty
}

// Bounty is a human-stated amount such as "50 USDC". Value keeps the
// decimal string as written; conversion to base units happens at payout
// time once the token's decimals are known.
type Bounty struct {
	Value string
	Asset string
}

// Parser extracts a Request from free-form PR text. Implementations must
// treat "nothing found" as a zero-field Request, not an error; errors are
// reserved for extraction machinery that genuinely failed (e.g. the model
// backend being unreachable).
type Parser interface {
	Parse(ctx context.Context, text string) (Request, error)
}

var walletRE = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

// ValidWallet reports whether s is exactly a 0x-prefixed 20-byte hex
// address. Partial or over-long candidates are rejected outright.
func ValidWallet(s string) bool {
	return len(s) == 42 && walletRE.FindString(s) == s
}
