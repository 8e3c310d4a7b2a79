package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// StoredKey is a secp256k1 signing key persisted as hex alongside its
// derived 0x address. Used by `gitpayd init` to provision a payout
// signer when none is supplied through the environment.
type StoredKey struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	PrivKeyHex string `json:"privkey_hex"`
	CreatedAt  string `json:"created_at"`
}

// Decode returns the parsed private key.
func (k StoredKey) Decode() (*ecdsa.PrivateKey, error) {
	return ParsePrivateKey(k.PrivKeyHex)
}

// ParsePrivateKey decodes a hex private key (with or without 0x prefix)
// and rejects material that does not produce a valid secp256k1 key.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if cleaned == "" {
		return nil, fmt.Errorf("empty private key")
	}
	priv, err := crypto.HexToECDSA(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return priv, nil
}

func EnsureKey(path, name string) (StoredKey, bool, error) {
	if key, err := Load(path); err == nil {
		return key, false, nil
	}
	key, err := Generate(name)
	if err != nil {
		return StoredKey{}, false, err
	}
	if err := Save(path, key); err != nil {
		return StoredKey{}, false, err
	}
	return key, true, nil
}

func Generate(name string) (StoredKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return StoredKey{}, err
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	return StoredKey{
		Name:       name,
		Address:    addr.Hex(),
		PrivKeyHex: hex.EncodeToString(crypto.FromECDSA(priv)),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func Save(path string, key StoredKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	bz, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, bz, 0o600)
}

func Load(path string) (StoredKey, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return StoredKey{}, err
	}
	var key StoredKey
	if err := json.Unmarshal(bz, &key); err != nil {
		return StoredKey{}, err
	}
	if key.Address == "" || key.PrivKeyHex == "" {
		return StoredKey{}, fmt.Errorf("invalid key file: missing address or key material")
	}
	return key, nil
}

func DefaultPayoutKeyPath(base string) string {
	return filepath.Join(base, "payout.json")
}
