package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gitpay/agent/internal/chain"
	"gitpay/agent/internal/config"
	"gitpay/agent/internal/escrow"
	"gitpay/agent/internal/event"
	"gitpay/agent/internal/github"
	"gitpay/agent/internal/keys"
	"gitpay/agent/internal/ledger"
	"gitpay/agent/internal/llm"
	"gitpay/agent/internal/parser"
	"gitpay/agent/internal/runner"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	switch os.Args[1] {
	case "init":
		if err := cmdInit(); err != nil {
			fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
			os.Exit(1)
		}
	case "run":
		if err := cmdRun(os.Args[2:], logger); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			os.Exit(1)
		}
	case "status":
		if err := cmdStatus(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
			os.Exit(1)
		}
	case "ledger":
		if err := cmdLedger(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "ledger failed: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("gitpayd init | run | status | ledger")
}

func cmdInit() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	base := filepath.Join(home, ".gitpay")
	if err := os.MkdirAll(base, 0o700); err != nil {
		return err
	}

	cfg := config.Default(home)
	cfgPath := filepath.Join(base, "config.yaml")
	if err := os.MkdirAll(cfg.Chain.KeyStore, 0o700); err != nil {
		return err
	}

	keyPath := keys.DefaultPayoutKeyPath(cfg.Chain.KeyStore)
	key, created, err := keys.EnsureKey(keyPath, "payout")
	if err != nil {
		return err
	}
	if err := config.Write(cfgPath, cfg); err != nil {
		return err
	}

	fmt.Printf("initialized %s\n", cfgPath)
	fmt.Printf("payout address: %s\n", key.Address)
	if created {
		fmt.Printf("key stored in %s\n", cfg.Chain.KeyStore)
	}
	return nil
}

func cmdRun(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	eventPath := fs.String("event", "", "path to the merge event payload (defaults to GITHUB_EVENT_PATH)")
	dryRun := fs.Bool("dry-run", false, "skip chain submission and return a placeholder outcome")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *dryRun {
		cfg.Payout.DryRun = true
	}

	path := strings.TrimSpace(*eventPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GITHUB_EVENT_PATH"))
	}
	if path == "" {
		return fmt.Errorf("event payload path is required (-event or GITHUB_EVENT_PATH)")
	}
	ev, err := event.ReadFile(path)
	if err != nil {
		return err
	}
	if cfg.GitHub.Owner == "" {
		cfg.GitHub.Owner = ev.Owner
	}
	if cfg.GitHub.Repo == "" {
		cfg.GitHub.Repo = ev.Repo
	}
	ev.Owner = cfg.GitHub.Owner
	ev.Repo = cfg.GitHub.Repo

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := ensureSigningKey(&cfg); err != nil {
		return err
	}

	p, err := buildParser(cfg)
	if err != nil {
		return err
	}

	executor, err := chain.New(chain.Config{
		RPC:            cfg.Chain.RPC,
		ChainID:        cfg.Chain.ChainID,
		TokenContract:  cfg.Chain.TokenContract,
		PrivateKeyHex:  cfg.Chain.PrivateKey,
		DryRun:         cfg.Payout.DryRun,
		ConfirmTimeout: time.Duration(cfg.Chain.ConfirmTimeoutSeconds) * time.Second,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer executor.Close()

	store, err := ledger.OpenStore(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	run := runner.New(
		runner.Config{
			IssueLabel:    cfg.Payout.IssueLabel,
			DefaultAmount: cfg.Payout.DefaultAmount,
			Asset:         cfg.Payout.Asset,
		},
		p,
		escrow.New(cfg.Escrow.URL),
		github.New(cfg.GitHub.API, cfg.GitHub.Token),
		executor,
		store,
		logger,
	)

	result, err := run.Run(context.Background(), ev)
	if err != nil {
		return err
	}
	logger.Info("run finished", "state", string(result.State), "reason", result.Reason, "tx", result.PayoutTx)
	return nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	owner := fs.String("owner", "", "repository owner")
	repo := fs.String("repo", "", "repository name")
	issue := fs.Int("issue", 0, "issue number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *owner == "" {
		*owner = cfg.GitHub.Owner
	}
	if *repo == "" {
		*repo = cfg.GitHub.Repo
	}
	if *owner == "" || *repo == "" || *issue <= 0 {
		return fmt.Errorf("owner, repo and issue are required")
	}

	client := escrow.New(cfg.Escrow.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	record, err := client.CheckFunded(ctx, *owner, *repo, *issue)
	cancel()
	if err != nil {
		return err
	}

	if !record.Funded {
		fmt.Printf("issue #%d: not funded\n", *issue)
		return nil
	}
	fmt.Printf("issue #%d: funded\n", *issue)
	fmt.Printf("  escrow tx:  %s\n", record.EscrowTxHash)
	fmt.Printf("  base units: %d\n", record.AmountBaseUnits)
	return nil
}

func cmdLedger(args []string) error {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	owner := fs.String("owner", "", "repository owner")
	repo := fs.String("repo", "", "repository name")
	pr := fs.Int("pr", 0, "pull request number")
	clear := fs.Bool("clear", false, "remove the entry after manual reconciliation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *owner == "" || *repo == "" || *pr <= 0 {
		return fmt.Errorf("owner, repo and pr are required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.OpenStore(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entry, found, err := store.Get(*owner, *repo, *pr)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("no ledger entry for %s/%s#%d\n", *owner, *repo, *pr)
		return nil
	}
	fmt.Printf("%s/%s#%d\n", entry.Owner, entry.Repo, entry.PRNumber)
	fmt.Printf("  status:  %s\n", entry.Status)
	fmt.Printf("  issue:   #%d\n", entry.IssueNumber)
	fmt.Printf("  wallet:  %s\n", entry.Wallet)
	if entry.PayoutTx != "" {
		fmt.Printf("  payout:  %s\n", entry.PayoutTx)
	}
	if entry.Reason != "" {
		fmt.Printf("  reason:  %s\n", entry.Reason)
	}
	fmt.Printf("  updated: %s\n", entry.UpdatedAt)

	if *clear {
		if err := store.Clear(*owner, *repo, *pr); err != nil {
			return err
		}
		fmt.Println("entry cleared")
	}
	return nil
}

func buildParser(cfg config.Config) (parser.Parser, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Parser.Strategy)) {
	case "", "regex":
		return parser.NewRegexParser(), nil
	case "llm":
		client, err := llm.New(llm.Config{
			Provider:        cfg.LLM.Provider,
			Model:           cfg.LLM.Model,
			BaseURL:         cfg.LLM.BaseURL,
			APIKey:          cfg.LLM.APIKey,
			Temperature:     cfg.LLM.Temperature,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
			TimeoutSeconds:  cfg.LLM.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		return parser.NewLLMParser(client)
	default:
		return nil, fmt.Errorf("unknown parser strategy %q", cfg.Parser.Strategy)
	}
}

// ensureSigningKey fills the configured private key from the local
// keystore when the environment did not supply one. In dry-run mode no
// key is needed.
func ensureSigningKey(cfg *config.Config) error {
	if cfg.Payout.DryRun || strings.TrimSpace(cfg.Chain.PrivateKey) != "" {
		return nil
	}
	if strings.TrimSpace(cfg.Chain.KeyStore) == "" {
		return chain.ErrMissingCredential
	}
	key, err := keys.Load(keys.DefaultPayoutKeyPath(cfg.Chain.KeyStore))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: set CRONOS_PRIVATE_KEY or run gitpayd init", chain.ErrMissingCredential)
		}
		return err
	}
	cfg.Chain.PrivateKey = key.PrivKeyHex
	return nil
}

func loadConfig() (config.Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return config.Config{}, err
	}
	cfgPath := filepath.Join(home, ".gitpay", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, err
		}
		cfg = config.Default(home)
	}
	config.ApplyEnv(&cfg)
	return cfg, nil
}
