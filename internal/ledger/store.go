package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store is the local payout ledger, one row per pull request. A row is
// inserted (status pending) before the payout call and promoted to paid
// afterwards, so two runs racing on the same PR cannot both reach the
// chain: the insert is atomic and the loser sees the existing row.
//
// The workflow is strictly sequential, so a single connection suffices.
type Store struct {
	conn *sqlite.Conn
}

const schema = `
CREATE TABLE IF NOT EXISTS payouts (
	owner        TEXT NOT NULL,
	repo         TEXT NOT NULL,
	pr_number    INTEGER NOT NULL,
	issue_number INTEGER NOT NULL,
	wallet       TEXT NOT NULL,
	status       TEXT NOT NULL,
	payout_tx    TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (owner, repo, pr_number)
);
`

// Entry is a ledger row.
type Entry struct {
	Owner       string
	Repo        string
	PRNumber    int
	IssueNumber int
	Wallet      string
	Status      string // pending | paid | failed
	PayoutTx    string
	Reason      string
	UpdatedAt   string
}

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ledger: creating directory: %w", err)
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: applying schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Reserve claims the PR for this run. It returns false when another row
// already exists, paid or pending or failed: a pending row means a
// concurrent or crashed run, a failed row means an earlier attempt that
// needs manual reconciliation before funds may move again.
func (s *Store) Reserve(owner, repo string, prNumber, issueNumber int, wallet string) (bool, error) {
	err := sqlitex.Execute(s.conn, `
		INSERT INTO payouts (owner, repo, pr_number, issue_number, wallet, status, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
		ON CONFLICT (owner, repo, pr_number) DO NOTHING`,
		&sqlitex.ExecOptions{
			Args: []any{owner, repo, prNumber, issueNumber, wallet, now()},
		})
	if err != nil {
		return false, fmt.Errorf("ledger: reserve: %w", err)
	}
	return s.conn.Changes() > 0, nil
}

// MarkPaid promotes a reservation to paid with the payout tx hash.
func (s *Store) MarkPaid(owner, repo string, prNumber int, payoutTx string) error {
	err := sqlitex.Execute(s.conn, `
		UPDATE payouts SET status = 'paid', payout_tx = ?, updated_at = ?
		WHERE owner = ? AND repo = ? AND pr_number = ?`,
		&sqlitex.ExecOptions{
			Args: []any{payoutTx, now(), owner, repo, prNumber},
		})
	if err != nil {
		return fmt.Errorf("ledger: mark paid: %w", err)
	}
	return nil
}

// MarkFailed records a payout attempt that did not succeed. The row is
// kept: after a submission of unknown fate, an automatic retry could
// double-spend, so a failed PR stays blocked until an operator clears it.
func (s *Store) MarkFailed(owner, repo string, prNumber int, reason string) error {
	err := sqlitex.Execute(s.conn, `
		UPDATE payouts SET status = 'failed', reason = ?, updated_at = ?
		WHERE owner = ? AND repo = ? AND pr_number = ?`,
		&sqlitex.ExecOptions{
			Args: []any{reason, now(), owner, repo, prNumber},
		})
	if err != nil {
		return fmt.Errorf("ledger: mark failed: %w", err)
	}
	return nil
}

// Release drops a reservation that never reached the chain (e.g. the
// run aborted between reserve and submission for a non-chain reason).
func (s *Store) Release(owner, repo string, prNumber int) error {
	err := sqlitex.Execute(s.conn, `
		DELETE FROM payouts
		WHERE owner = ? AND repo = ? AND pr_number = ? AND status = 'pending'`,
		&sqlitex.ExecOptions{
			Args: []any{owner, repo, prNumber},
		})
	if err != nil {
		return fmt.Errorf("ledger: release: %w", err)
	}
	return nil
}

// Clear removes a PR's row regardless of status. Operator tool for
// reconciling a failed payout after checking the chain by hand.
func (s *Store) Clear(owner, repo string, prNumber int) error {
	err := sqlitex.Execute(s.conn, `
		DELETE FROM payouts
		WHERE owner = ? AND repo = ? AND pr_number = ?`,
		&sqlitex.ExecOptions{
			Args: []any{owner, repo, prNumber},
		})
	if err != nil {
		return fmt.Errorf("ledger: clear: %w", err)
	}
	return nil
}

// Get returns the ledger row for a PR, or ok=false when none exists.
func (s *Store) Get(owner, repo string, prNumber int) (Entry, bool, error) {
	var entry Entry
	found := false
	err := sqlitex.Execute(s.conn, `
		SELECT owner, repo, pr_number, issue_number, wallet, status, payout_tx, reason, updated_at
		FROM payouts
		WHERE owner = ? AND repo = ? AND pr_number = ?`,
		&sqlitex.ExecOptions{
			Args: []any{owner, repo, prNumber},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				entry = Entry{
					Owner:       stmt.ColumnText(0),
					Repo:        stmt.ColumnText(1),
					PRNumber:    int(stmt.ColumnInt64(2)),
					IssueNumber: int(stmt.ColumnInt64(3)),
					Wallet:      stmt.ColumnText(4),
					Status:      stmt.ColumnText(5),
					PayoutTx:    stmt.ColumnText(6),
					Reason:      stmt.ColumnText(7),
					UpdatedAt:   stmt.ColumnText(8),
				}
				return nil
			},
		})
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger: get: %w", err)
	}
	return entry, found, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
