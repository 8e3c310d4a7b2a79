package ledger

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReserveOncePerPR(t *testing.T) {
	store := openTestStore(t)

	ok, err := store.Reserve("octocat", "gitpay", 5, 42, "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !ok {
		t.Fatal("first reserve refused")
	}

	again, err := store.Reserve("octocat", "gitpay", 5, 42, "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if again {
		t.Error("second reserve for the same PR succeeded")
	}

	// Different PR in the same repo is independent.
	other, err := store.Reserve("octocat", "gitpay", 6, 42, "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !other {
		t.Error("reserve for a different PR refused")
	}
}

func TestMarkPaid(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Reserve("octocat", "gitpay", 5, 42, "0xwallet"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkPaid("octocat", "gitpay", 5, "0xdeadbeef"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	entry, found, err := store.Get("octocat", "gitpay", 5)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if entry.Status != "paid" || entry.PayoutTx != "0xdeadbeef" {
		t.Errorf("entry = %+v", entry)
	}

	// Paid rows keep blocking reservation.
	ok, err := store.Reserve("octocat", "gitpay", 5, 42, "0xwallet")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("reserve succeeded for a paid PR")
	}
}

func TestMarkFailedBlocksUntilCleared(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Reserve("octocat", "gitpay", 5, 42, "0xwallet"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed("octocat", "gitpay", 5, "transaction reverted"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	ok, err := store.Reserve("octocat", "gitpay", 5, 42, "0xwallet")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("reserve succeeded for a failed PR without operator action")
	}

	if err := store.Clear("octocat", "gitpay", 5); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ok, err = store.Reserve("octocat", "gitpay", 5, 42, "0xwallet")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("reserve refused after operator cleared the entry")
	}
}

func TestReleaseDropsPendingOnly(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Reserve("octocat", "gitpay", 5, 42, "0xwallet"); err != nil {
		t.Fatal(err)
	}
	if err := store.Release("octocat", "gitpay", 5); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, found, _ := store.Get("octocat", "gitpay", 5); found {
		t.Error("pending entry survived release")
	}

	// Release must not delete a paid row.
	if _, err := store.Reserve("octocat", "gitpay", 6, 42, "0xwallet"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkPaid("octocat", "gitpay", 6, "0xabc"); err != nil {
		t.Fatal(err)
	}
	if err := store.Release("octocat", "gitpay", 6); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, found, _ := store.Get("octocat", "gitpay", 6); !found {
		t.Error("paid entry deleted by release")
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)
	_, found, err := store.Get("octocat", "gitpay", 99)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("found entry that was never written")
	}
}
