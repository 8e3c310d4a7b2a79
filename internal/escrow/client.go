// Package escrow queries the x402 bounty service for an issue's funding
// state. The service is the authority on whether a bounty has been
// deposited; the client never caches its answers.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnreachable wraps transport-level failures (DNS, refused
// connection, timeout). Callers abort the run on it instead of posting a
// receipt based on unknown funding state.
var ErrUnreachable = errors.New("escrow service unreachable")

// StatusError is a non-2xx response other than 404. A 404 is not an
// error: it is the normal answer for an issue nobody funded.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("escrow status request failed (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("escrow status request failed (status %d)", e.StatusCode)
}

// FundingRecord is a point-in-time snapshot of an issue's escrow state.
type FundingRecord struct {
	Funded          bool
	EscrowTxHash    string
	AmountBaseUnits uint64
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// statusResponse mirrors the service's JSON. The record arrives in
// camelCase from the Node service, but older deployments emitted
// snake_case; both spellings are accepted and folded together.
type statusResponse struct {
	Funded bool `json:"funded"`
	Record *struct {
		FundedTxHash         string    `json:"fundedTxHash"`
		FundedTxHashSnake    string    `json:"funded_tx_hash"`
		AmountBaseUnits      baseUnits `json:"amountBaseUnits"`
		AmountBaseUnitsSnake baseUnits `json:"amount_base_units"`
	} `json:"record"`
}

// baseUnits tolerates both string and number JSON encodings of a
// base-unit amount.
type baseUnits uint64

func (b *baseUnits) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*b = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid base-unit amount %q", s)
	}
	*b = baseUnits(v)
	return nil
}

// CheckFunded fetches the funding state for (owner, repo, issueNumber).
// 404 means no escrow record exists and returns Funded=false.
func (c *Client) CheckFunded(ctx context.Context, owner, repo string, issueNumber int) (FundingRecord, error) {
	q := url.Values{}
	q.Set("owner", owner)
	q.Set("repo", repo)
	q.Set("issueNumber", strconv.Itoa(issueNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/bounties/status?"+q.Encode(), nil)
	if err != nil {
		return FundingRecord{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return FundingRecord{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return FundingRecord{Funded: false}, nil
	}
	if resp.StatusCode >= 300 {
		body := ""
		if b, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
			body = strings.TrimSpace(string(b))
		}
		return FundingRecord{}, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return FundingRecord{}, fmt.Errorf("escrow status response: %w", err)
	}

	record := FundingRecord{Funded: parsed.Funded}
	if parsed.Record != nil {
		record.EscrowTxHash = firstNonEmpty(parsed.Record.FundedTxHash, parsed.Record.FundedTxHashSnake)
		record.AmountBaseUnits = uint64(parsed.Record.AmountBaseUnits)
		if record.AmountBaseUnits == 0 {
			record.AmountBaseUnits = uint64(parsed.Record.AmountBaseUnitsSnake)
		}
	}
	return record, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
