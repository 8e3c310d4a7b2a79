// Package github is a minimal REST client for the three operations the
// payout run needs: fetch an issue, list PR comments, post a comment.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Labels []Label `json:"labels"`
}

type Label struct {
	Name string `json:"name"`
}

type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

func New(baseURL, token string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// HasLabel reports whether the issue carries the named label.
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	var issue Issue
	path := "/repos/" + owner + "/" + repo + "/issues/" + strconv.Itoa(number)
	if err := c.get(ctx, path, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// ListPRComments returns the discussion comments on a pull request.
// PR comments live on the issues endpoint in the GitHub API.
func (c *Client) ListPRComments(ctx context.Context, owner, repo string, prNumber int) ([]Comment, error) {
	var comments []Comment
	path := "/repos/" + owner + "/" + repo + "/issues/" + strconv.Itoa(prNumber) + "/comments"
	if err := c.get(ctx, path, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) PostComment(ctx context.Context, owner, repo string, prNumber int, body string) error {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}
	path := "/repos/" + owner + "/" + repo + "/issues/" + strconv.Itoa(prNumber) + "/comments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.responseError(resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.auth(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) auth(req *http.Request) {
	if strings.TrimSpace(c.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}

func (c *Client) responseError(resp *http.Response) error {
	msg := "github request failed"
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		trimmed := strings.TrimSpace(string(body))
		if trimmed != "" {
			msg = fmt.Sprintf("%s: %s", msg, trimmed)
		}
	}
	return fmt.Errorf("%s (status %d)", msg, resp.StatusCode)
}
