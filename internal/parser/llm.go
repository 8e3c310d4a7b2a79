package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gitpay/agent/internal/llm"
)

const extractMaxAttempts = 3

// LLMParser asks a model to pull the wallet, linked issue, and bounty out
// of PR text. The model's output is held to the same shape the regex
// strategy produces: every extracted field is re-validated, so a
// hallucinated wallet that is not literally present in the text is
// dropped rather than paid.
type LLMParser struct {
	client llm.Client
}

func NewLLMParser(client llm.Client) (*LLMParser, error) {
	if client == nil {
		return nil, fmt.Errorf("llm parser requires a configured llm client")
	}
	return &LLMParser{client: client}, nil
}

func (p *LLMParser) Strategy() string { return "llm" }

type extraction struct {
	Wallet      string `json:"wallet"`
	IssueNumber int    `json:"issue_number"`
	Amount      string `json:"amount"`
	Asset       string `json:"asset"`
}

const extractSystemPrompt = "You extract payout details from pull request text. " +
	"Reply with exactly one JSON object and nothing else: " +
	`{"wallet":"","issue_number":0,"amount":"","asset":""}. ` +
	"wallet is a 0x address copied verbatim from the text, or empty if none. " +
	"issue_number is the issue referenced by Closes/Fixes/Resolves #N, or 0. " +
	"amount and asset come from a bracketed bounty like [50 USDC], or empty. " +
	"Never invent values that are not in the text."

func (p *LLMParser) Parse(ctx context.Context, text string) (Request, error) {
	prompt := llm.Prompt{
		System: extractSystemPrompt,
		User:   "Pull request text:\n" + text,
	}

	lastErr := "no extraction produced"
	for attempt := 1; attempt <= extractMaxAttempts; attempt++ {
		raw, err := p.client.Generate(ctx, prompt)
		if err != nil {
			lastErr = fmt.Sprintf("llm error: %v", err)
		} else {
			ext, parseErr := parseExtraction(raw)
			if parseErr != nil {
				lastErr = fmt.Sprintf("parse error: %v", parseErr)
			} else {
				return sanitize(ext, text), nil
			}
		}
		if attempt < extractMaxAttempts {
			prompt = llm.Prompt{
				System: extractSystemPrompt,
				User: fmt.Sprintf("%s\n\nPrevious output was rejected (%s). Attempt %d/%d. "+
					"Return exactly one JSON object, no markdown.", "Pull request text:\n"+text, lastErr, attempt+1, extractMaxAttempts),
			}
		}
	}
	return Request{}, fmt.Errorf("failed to extract after %d attempts: %s", extractMaxAttempts, lastErr)
}

func parseExtraction(raw string) (extraction, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return extraction{}, fmt.Errorf("no JSON object in output")
	}

	var ext extraction
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &ext); err != nil {
		return extraction{}, err
	}
	return ext, nil
}

// sanitize cross-checks model output against the source text. The model
// is a convenience, not an authority: a wallet it reports must appear
// verbatim in the PR body and pass address validation.
func sanitize(ext extraction, text string) Request {
	req := Request{}

	wallet := strings.TrimSpace(ext.Wallet)
	if ValidWallet(wallet) && strings.Contains(text, wallet) {
		req.Wallet = wallet
	}
	if req.Wallet == "" {
		req.Wallet = FindWallet(text)
	}

	if ext.IssueNumber > 0 {
		req.IssueNumber = ext.IssueNumber
	} else {
		req.IssueNumber = FindLinkedIssue(text)
	}

	value := strings.TrimSpace(ext.Amount)
	asset := strings.ToUpper(strings.TrimSpace(ext.Asset))
	if value != "" && asset != "" {
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			req.Bounty = &Bounty{Value: value, Asset: asset}
		}
	}
	if req.Bounty == nil {
		req.Bounty = FindBounty(text)
	}
	return req
}
