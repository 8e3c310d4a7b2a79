package chain

import (
	"context"
	"errors"
	"testing"
)

func TestDryRunSkipsNetwork(t *testing.T) {
	// No RPC, no key, no contract: construction and execution must not
	// touch the network in dry-run mode.
	exec, err := New(Config{DryRun: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer exec.Close()

	outcome := exec.Execute(context.Background(), "0x1111111111111111111111111111111111111111", FromDecimal("1.0", "USDC"))
	dry, ok := outcome.(DryRun)
	if !ok {
		t.Fatalf("outcome = %T, want DryRun", outcome)
	}
	if dry.TxHash != DryRunTxHash {
		t.Errorf("tx = %q, want deterministic placeholder", dry.TxHash)
	}

	// Deterministic: a second run yields the identical placeholder.
	again := exec.Execute(context.Background(), "0x1111111111111111111111111111111111111111", FromDecimal("1.0", "USDC"))
	if again.(DryRun).TxHash != dry.TxHash {
		t.Error("placeholder hash not deterministic")
	}
}

func TestDryRunStillValidatesAddress(t *testing.T) {
	exec, err := New(Config{DryRun: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer exec.Close()

	outcome := exec.Execute(context.Background(), "not-an-address", FromDecimal("1.0", "USDC"))
	if _, ok := outcome.(Failure); !ok {
		t.Fatalf("outcome = %T, want Failure for invalid address", outcome)
	}
}

func TestNewRequiresSigningKey(t *testing.T) {
	_, err := New(Config{
		RPC:           "http://localhost:8545",
		ChainID:       338,
		TokenContract: "0x2222222222222222222222222222222222222222",
	})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
}

func TestNewRejectsBadKeyMaterial(t *testing.T) {
	_, err := New(Config{
		RPC:           "http://localhost:8545",
		ChainID:       338,
		TokenContract: "0x2222222222222222222222222222222222222222",
		PrivateKeyHex: "zzzz",
	})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
}

func TestNewRejectsBadTokenContract(t *testing.T) {
	_, err := New(Config{
		RPC:           "http://localhost:8545",
		ChainID:       338,
		TokenContract: "treasury",
		PrivateKeyHex: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	})
	if err == nil {
		t.Fatal("expected error for invalid token contract")
	}
}
