package event

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// MergeEvent is the slice of the GitHub pull_request webhook payload the
// payout run consumes.
type MergeEvent struct {
	Owner    string
	Repo     string
	PRNumber int
	PRBody   string
	Merged   bool
}

type payload struct {
	PullRequest *struct {
		Number int    `json:"number"`
		Body   string `json:"body"`
		Merged bool   `json:"merged"`
	} `json:"pull_request"`
	Repository *struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// ReadFile decodes a webhook event payload from disk (the file Actions
// points GITHUB_EVENT_PATH at).
func ReadFile(path string) (MergeEvent, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return MergeEvent{}, fmt.Errorf("event: reading payload: %w", err)
	}
	return Parse(b)
}

// Parse decodes a webhook event payload. A payload without a pull_request
// section yields a zero PR number, which the runner treats as a no-action
// exit rather than an error.
func Parse(b []byte) (MergeEvent, error) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return MergeEvent{}, fmt.Errorf("event: decoding payload: %w", err)
	}
	ev := MergeEvent{}
	if p.PullRequest != nil {
		ev.PRNumber = p.PullRequest.Number
		ev.PRBody = p.PullRequest.Body
		ev.Merged = p.PullRequest.Merged
	}
	if p.Repository != nil {
		ev.Repo = strings.TrimSpace(p.Repository.Name)
		ev.Owner = strings.TrimSpace(p.Repository.Owner.Login)
	}
	return ev, nil
}
