package parser

import (
	"context"
	"strings"
	"testing"

	"gitpay/agent/internal/llm"
)

const testBody = "Closes #42\nWallet: 0x1111111111111111111111111111111111111111"

// fakeLLM implements llm.Client with a scripted sequence of replies.
type fakeLLM struct {
	replies []string
	calls   int
}

func (f *fakeLLM) Provider() string { return "fake" }
func (f *fakeLLM) Model() string    { return "fake" }

func (f *fakeLLM) Generate(_ context.Context, _ llm.Prompt) (string, error) {
	if f.calls >= len(f.replies) {
		return "", context.Canceled
	}
	reply := f.replies[f.calls]
	f.calls++
	return reply, nil
}

func TestLLMParserExtracts(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"wallet":"0x1111111111111111111111111111111111111111","issue_number":42,"amount":"","asset":""}`,
	}}
	p, err := NewLLMParser(client)
	if err != nil {
		t.Fatal(err)
	}

	req, err := p.Parse(context.Background(), testBody)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Wallet != "0x1111111111111111111111111111111111111111" {
		t.Errorf("wallet = %q", req.Wallet)
	}
	if req.IssueNumber != 42 {
		t.Errorf("issue = %d, want 42", req.IssueNumber)
	}
}

func TestLLMParserStripsMarkdownFence(t *testing.T) {
	client := &fakeLLM{replies: []string{
		"```json\n{\"wallet\":\"0x1111111111111111111111111111111111111111\",\"issue_number\":42,\"amount\":\"\",\"asset\":\"\"}\n```",
	}}
	p, err := NewLLMParser(client)
	if err != nil {
		t.Fatal(err)
	}
	req, err := p.Parse(context.Background(), testBody)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Wallet == "" || req.IssueNumber != 42 {
		t.Errorf("fenced JSON not handled: %+v", req)
	}
}

func TestLLMParserDropsHallucinatedWallet(t *testing.T) {
	// The model reports a wallet that is not in the text; it must not
	// survive into the request.
	client := &fakeLLM{replies: []string{
		`{"wallet":"0x9999999999999999999999999999999999999999","issue_number":42,"amount":"","asset":""}`,
	}}
	p, err := NewLLMParser(client)
	if err != nil {
		t.Fatal(err)
	}
	req, err := p.Parse(context.Background(), "Closes #42, no wallet here")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Wallet != "" {
		t.Errorf("hallucinated wallet kept: %q", req.Wallet)
	}
}

func TestLLMParserRetriesThenFails(t *testing.T) {
	client := &fakeLLM{replies: []string{"not json", "still not json", "nope"}}
	p, err := NewLLMParser(client)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Parse(context.Background(), testBody)
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	if client.calls != extractMaxAttempts {
		t.Errorf("calls = %d, want %d", client.calls, extractMaxAttempts)
	}
	if !strings.Contains(err.Error(), "failed to extract") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLLMParserRecoversOnRetry(t *testing.T) {
	client := &fakeLLM{replies: []string{
		"I think the wallet is...",
		`{"wallet":"0x1111111111111111111111111111111111111111","issue_number":42,"amount":"","asset":""}`,
	}}
	p, err := NewLLMParser(client)
	if err != nil {
		t.Fatal(err)
	}
	req, err := p.Parse(context.Background(), testBody)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Wallet == "" {
		t.Error("second attempt result discarded")
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestNewLLMParserRequiresClient(t *testing.T) {
	if _, err := NewLLMParser(nil); err == nil {
		t.Error("expected error for nil client")
	}
}
