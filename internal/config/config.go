package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Escrow struct {
		URL string `yaml:"url"`
	} `yaml:"escrow"`
	GitHub struct {
		API   string `yaml:"api"`
		Token string `yaml:"token"`
		Owner string `yaml:"owner"`
		Repo  string `yaml:"repo"`
	} `yaml:"github"`
	Chain struct {
		RPC                   string `yaml:"rpc"`
		ChainID               int64  `yaml:"chain_id"`
		TokenContract         string `yaml:"token_contract"`
		PrivateKey            string `yaml:"private_key"`
		KeyStore              string `yaml:"key_store"`
		ConfirmTimeoutSeconds int    `yaml:"confirm_timeout_seconds"`
	} `yaml:"chain"`
	Payout struct {
		DryRun        bool   `yaml:"dry_run"`
		DefaultAmount string `yaml:"default_amount"`
		Asset         string `yaml:"asset"`
		IssueLabel    string `yaml:"issue_label"`
	} `yaml:"payout"`
	Parser struct {
		Strategy string `yaml:"strategy"`
	} `yaml:"parser"`
	LLM struct {
		Provider        string  `yaml:"provider"`
		Model           string  `yaml:"model"`
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		Temperature     float64 `yaml:"temperature"`
		MaxOutputTokens int     `yaml:"max_output_tokens"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
	} `yaml:"llm"`
	Ledger struct {
		Path string `yaml:"path"`
	} `yaml:"ledger"`
}

func Default(home string) Config {
	cfg := Config{}
	cfg.Escrow.URL = "http://localhost:8787"
	cfg.GitHub.API = "https://api.github.com"
	cfg.Chain.RPC = "https://evm-t3.cronos.org"
	cfg.Chain.ChainID = 338
	cfg.Chain.KeyStore = filepath.Join(home, ".gitpay", "keys")
	cfg.Chain.ConfirmTimeoutSeconds = 120
	cfg.Payout.DryRun = false
	cfg.Payout.DefaultAmount = "1.0"
	cfg.Payout.Asset = "USDC"
	cfg.Payout.IssueLabel = "x402"
	cfg.Parser.Strategy = "regex"
	cfg.LLM.Temperature = 0
	cfg.LLM.MaxOutputTokens = 256
	cfg.LLM.TimeoutSeconds = 20
	cfg.Ledger.Path = filepath.Join(home, ".gitpay", "ledger.db")
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Write(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ApplyEnv layers environment overrides on top of a loaded config. The
// variable names mirror the ones the GitHub Action workflow exports.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("X402_SERVICE_URL")); v != "" {
		cfg.Escrow.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("GITHUB_API_URL")); v != "" {
		cfg.GitHub.API = v
	}
	if v := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); v != "" {
		cfg.GitHub.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("GITHUB_REPO_OWNER")); v != "" {
		cfg.GitHub.Owner = v
	}
	if v := strings.TrimSpace(os.Getenv("GITHUB_REPO_NAME")); v != "" {
		cfg.GitHub.Repo = v
	}
	if v := strings.TrimSpace(os.Getenv("CRONOS_RPC_URL")); v != "" {
		cfg.Chain.RPC = v
	}
	if v := strings.TrimSpace(os.Getenv("CRONOS_CHAIN_ID")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := strings.TrimSpace(os.Getenv("USDC_CONTRACT")); v != "" {
		cfg.Chain.TokenContract = v
	}
	if v := strings.TrimSpace(os.Getenv("CRONOS_PRIVATE_KEY")); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GITPAY_DRY_RUN")); v != "" {
		cfg.Payout.DryRun = v == "1" || strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(os.Getenv("GITPAY_DEFAULT_AMOUNT")); v != "" {
		cfg.Payout.DefaultAmount = v
	}
	if v := strings.TrimSpace(os.Getenv("PAYOUT_ASSET")); v != "" {
		cfg.Payout.Asset = strings.ToUpper(v)
	}
	if v, ok := os.LookupEnv("GITPAY_ISSUE_LABEL"); ok {
		cfg.Payout.IssueLabel = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("GITPAY_PARSER")); v != "" {
		cfg.Parser.Strategy = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("GITPAY_LEDGER_PATH")); v != "" {
		cfg.Ledger.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_PROVIDER")); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_BASE_URL")); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_API_KEY")); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); v != "" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TEMPERATURE")); v != "" {
		if value, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = value
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MAX_TOKENS")); v != "" {
		if value, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxOutputTokens = value
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SECONDS")); v != "" {
		if value, err := strconv.Atoi(v); err == nil {
			cfg.LLM.TimeoutSeconds = value
		}
	}
}

// Validate checks the fields a payout run cannot start without. It runs
// before any side effect so a misconfigured workflow fails fast.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Escrow.URL) == "" {
		return fmt.Errorf("config: escrow url is required (X402_SERVICE_URL)")
	}
	if strings.TrimSpace(c.GitHub.Owner) == "" || strings.TrimSpace(c.GitHub.Repo) == "" {
		return fmt.Errorf("config: repository owner and name are required (GITHUB_REPO_OWNER, GITHUB_REPO_NAME)")
	}
	if strings.TrimSpace(c.GitHub.Token) == "" {
		return fmt.Errorf("config: github token is required (GITHUB_TOKEN)")
	}
	if !c.Payout.DryRun {
		if strings.TrimSpace(c.Chain.TokenContract) == "" {
			return fmt.Errorf("config: token contract is required (USDC_CONTRACT)")
		}
		if strings.TrimSpace(c.Chain.RPC) == "" {
			return fmt.Errorf("config: chain rpc url is required (CRONOS_RPC_URL)")
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Parser.Strategy)) {
	case "", "regex", "llm":
	default:
		return fmt.Errorf("config: unknown parser strategy %q", c.Parser.Strategy)
	}
	return nil
}
