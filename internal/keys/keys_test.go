package keys

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payout.json")

	key, err := Generate("payout")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(key.Address, "0x") || len(key.Address) != 42 {
		t.Errorf("address = %q", key.Address)
	}
	if err := Save(path, key); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Address != key.Address || loaded.PrivKeyHex != key.PrivKeyHex {
		t.Errorf("loaded key differs: %+v vs %+v", loaded, key)
	}

	priv, err := loaded.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := crypto.PubkeyToAddress(priv.PublicKey).Hex(); got != key.Address {
		t.Errorf("decoded key derives %s, stored address %s", got, key.Address)
	}
}

func TestEnsureKeyCreatesThenReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payout.json")

	first, created, err := EnsureKey(path, "payout")
	if err != nil {
		t.Fatalf("EnsureKey: %v", err)
	}
	if !created {
		t.Fatal("first call did not create a key")
	}

	second, created, err := EnsureKey(path, "payout")
	if err != nil {
		t.Fatalf("EnsureKey: %v", err)
	}
	if created {
		t.Error("second call regenerated the key")
	}
	if second.Address != first.Address {
		t.Errorf("addresses differ: %s vs %s", second.Address, first.Address)
	}
}

func TestParsePrivateKey(t *testing.T) {
	key, err := Generate("test")
	if err != nil {
		t.Fatal(err)
	}

	for _, input := range []string{key.PrivKeyHex, "0x" + key.PrivKeyHex, "  " + key.PrivKeyHex + "\n"} {
		priv, err := ParsePrivateKey(input)
		if err != nil {
			t.Errorf("ParsePrivateKey(%q): %v", input, err)
			continue
		}
		if crypto.PubkeyToAddress(priv.PublicKey).Hex() != key.Address {
			t.Errorf("wrong address for input %q", input)
		}
	}
}

func TestParsePrivateKeyRejectsBadMaterial(t *testing.T) {
	for _, input := range []string{"", "0x", "zzzz", "deadbeef"} {
		if _, err := ParsePrivateKey(input); err == nil {
			t.Errorf("ParsePrivateKey(%q) accepted bad material", input)
		}
	}
}

func TestLoadRejectsIncompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payout.json")
	if err := Save(path, StoredKey{Name: "payout"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for key file without material")
	}
}
