// Package chain executes the single ERC-20 transfer a funded bounty
// authorizes. One token contract, one chain, one attempt: a failed or
// reverted submission is surfaced to the operator, never retried, so a
// retry can never double-spend against the same funding event.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"gitpay/agent/internal/keys"
)

// ErrMissingCredential means no signing key was configured. Detected at
// construction time, before any side effect, and fatal to the run.
var ErrMissingCredential = errors.New("chain: signing key not configured")

// ErrUnreachable wraps RPC transport failures. The orchestrator aborts
// on it rather than posting a receipt about a payout whose fate is
// unknown.
var ErrUnreachable = errors.New("chain: rpc unreachable")

// DryRunTxHash is the placeholder returned by dry-run payouts.
const DryRunTxHash = "0x" + "00000000000000000000000000000000000000000000000000000000d1a54a11"

const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

const defaultConfirmTimeout = 2 * time.Minute

type Config struct {
	RPC            string
	ChainID        int64
	TokenContract  string
	PrivateKeyHex  string
	DryRun         bool
	ConfirmTimeout time.Duration
	Logger         *slog.Logger
}

// Executor signs and submits transfers against the configured token
// contract. Construct once per process and inject; it holds the RPC
// connection and the cached token decimals.
type Executor struct {
	client         *ethclient.Client
	key            *ecdsa.PrivateKey
	from           common.Address
	token          common.Address
	chainID        *big.Int
	dryRun         bool
	confirmTimeout time.Duration
	logger         *slog.Logger
	erc20          abi.ABI

	decimals       uint8
	decimalsCached bool
}

func New(cfg Config) (*Executor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing erc20 abi: %w", err)
	}

	e := &Executor{
		dryRun:         cfg.DryRun,
		confirmTimeout: confirmTimeout,
		logger:         logger,
		erc20:          parsed,
	}
	if cfg.DryRun {
		return e, nil
	}

	if strings.TrimSpace(cfg.PrivateKeyHex) == "" {
		return nil, ErrMissingCredential
	}
	key, err := keys.ParsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("chain: token contract %q is not a valid address", cfg.TokenContract)
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("chain: chain id is required")
	}

	client, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrUnreachable, cfg.RPC, err)
	}

	e.client = client
	e.key = key
	e.from = crypto.PubkeyToAddress(key.PublicKey)
	e.token = common.HexToAddress(cfg.TokenContract)
	e.chainID = big.NewInt(cfg.ChainID)
	return e, nil
}

func (e *Executor) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

// Execute performs one transfer of amount to wallet. All failure modes
// come back as a Failure outcome; Execute itself never panics or
// retries.
func (e *Executor) Execute(ctx context.Context, wallet string, amount Amount) Outcome {
	if !common.IsHexAddress(wallet) {
		return Failure{Reason: fmt.Sprintf("invalid wallet address %q", wallet)}
	}
	to := common.HexToAddress(wallet)

	if e.dryRun {
		e.logger.Info("dry run, skipping chain submission",
			"to", to.Hex(),
			"amount", amount.String(),
		)
		return DryRun{TxHash: DryRunTxHash}
	}

	decimals, err := e.tokenDecimals(ctx)
	if err != nil {
		return Failure{Reason: "resolving token decimals", Err: err}
	}
	units, err := amount.Resolve(decimals)
	if err != nil {
		return Failure{Reason: fmt.Sprintf("invalid amount: %v", err), Err: err}
	}

	tx, err := e.submitTransfer(ctx, to, units)
	if err != nil {
		return Failure{Reason: "submitting transfer", Err: err}
	}

	e.logger.Info("transfer submitted, waiting for inclusion",
		"tx", tx.Hash().Hex(),
		"to", to.Hex(),
		"base_units", units.String(),
	)

	receipt, err := e.waitMined(ctx, tx)
	if err != nil {
		return Failure{Reason: "waiting for confirmation", Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Failure{Reason: fmt.Sprintf("transaction %s reverted", tx.Hash().Hex())}
	}
	return Success{TxHash: tx.Hash().Hex()}
}

func (e *Executor) tokenDecimals(ctx context.Context) (uint8, error) {
	if e.decimalsCached {
		return e.decimals, nil
	}
	data, err := e.erc20.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals call: %v", ErrUnreachable, err)
	}
	values, err := e.erc20.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decoding decimals: %w", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	e.decimals = decimals
	e.decimalsCached = true
	return decimals, nil
}

func (e *Executor) submitTransfer(ctx context.Context, to common.Address, units *big.Int) (*types.Transaction, error) {
	data, err := e.erc20.Pack("transfer", to, units)
	if err != nil {
		return nil, fmt.Errorf("packing transfer: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrUnreachable, err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %v", ErrUnreachable, err)
	}
	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.from,
		To:   &e.token,
		Data: data,
	})
	if err != nil {
		// Estimation failure usually means the transfer would revert
		// (e.g. insufficient token balance). Surface it pre-submission.
		return nil, fmt.Errorf("estimating gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.token,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return nil, fmt.Errorf("signing transfer: %w", err)
	}
	// A send failure is not classified as unreachable: the node may
	// have accepted the transaction before the connection dropped, so
	// the fate of the transfer is unknown and must not be auto-retried.
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending transaction: %v", err)
	}
	return signed, nil
}

// waitMined blocks until the transaction is included or the confirm
// timeout elapses. The bound keeps a stuck transaction from hanging the
// invoking workflow forever.
func (e *Executor) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, e.client, tx)
	if err != nil {
		return nil, fmt.Errorf("confirmation wait for %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}
