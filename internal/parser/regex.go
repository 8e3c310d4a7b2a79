package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var (
	issueRE  = regexp.MustCompile(`(?i)(?:Closes|Fixes|Resolves)\s+#(\d+)`)
	bountyRE = regexp.MustCompile(`(?i)\[(\d+(?:\.\d+)?)\s*([A-Z]{2,6})\]`)
)

// RegexParser is the deterministic extraction strategy. Parse is total:
// it never returns an error, and a body with no matches yields an empty
// Request. When several candidates match, the first occurrence wins.
type RegexParser struct{}

func NewRegexParser() *RegexParser {
	return &RegexParser{}
}

func (p *RegexParser) Strategy() string { return "regex" }

func (p *RegexParser) Parse(_ context.Context, text string) (Request, error) {
	return Request{
		Wallet:      FindWallet(text),
		IssueNumber: FindLinkedIssue(text),
		Bounty:      FindBounty(text),
	}, nil
}

// FindWallet returns the first 0x+40-hex substring in text, or "".
func FindWallet(text string) string {
	return walletRE.FindString(text)
}

// FindLinkedIssue returns the issue number of the first closing-keyword
// reference (Closes/Fixes/Resolves #N, any case), or 0.
func FindLinkedIssue(text string) int {
	m := issueRE.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// FindBounty returns the first bracketed "[<number> <ASSET>]" amount, or
// nil. Issue titles like "[50 USDC] Fix login" use this form.
func FindBounty(text string) *Bounty {
	m := bountyRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &Bounty{Value: m[1], Asset: strings.ToUpper(m[2])}
}
