package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrRateLimited marks failures caused by rate-limit exhaustion. Callers use
// errors.Is to distinguish "pause and resume later" from ordinary failures.
var ErrRateLimited = errors.New("github: rate limited")

// LatestCommit returns the SHA of the newest commit on branch.
func (c *Client) LatestCommit(ctx context.Context, branch string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/commits/%s", c.baseURL, c.repo, branch)
	resp, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		if resp.IsRateLimited {
			return "", fmt.Errorf("fetching latest commit: %w", ErrRateLimited)
		}
		return "", fmt.Errorf("fetching latest commit: %s", resp.failure())
	}

	var commit struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(resp.Body, &commit); err != nil {
		return "", fmt.Errorf("decoding commit response: %w", err)
	}
	if commit.SHA == "" {
		return "", errors.New("commit response missing sha")
	}
	return commit.SHA, nil
}

// ContentTree returns the paths of all blobs in the recursive tree of branch
// that live under pathPrefix and carry the ext extension.
func (c *Client) ContentTree(ctx context.Context, branch, pathPrefix, ext string) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.baseURL, c.repo, branch)
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		if resp.IsRateLimited {
			return nil, fmt.Errorf("fetching content tree: %w", ErrRateLimited)
		}
		return nil, fmt.Errorf("fetching content tree: %s", resp.failure())
	}

	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(resp.Body, &tree); err != nil {
		return nil, fmt.Errorf("decoding tree response: %w", err)
	}

	prefix := strings.TrimSuffix(pathPrefix, "/") + "/"
	var paths []string
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		if !strings.HasPrefix(entry.Path, prefix) || !strings.HasSuffix(entry.Path, ext) {
			continue
		}
		paths = append(paths, entry.Path)
	}
	return paths, nil
}

// FileContent fetches one file and returns its decoded text.
//
// The contents endpoint base64-encodes file bodies; decode failures and empty
// payloads are ordinary errors, while quota exhaustion wraps ErrRateLimited.
func (c *Client) FileContent(ctx context.Context, path string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.repo, path)
	resp, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		if resp.IsRateLimited {
			return "", fmt.Errorf("fetching %s: %w", path, ErrRateLimited)
		}
		return "", fmt.Errorf("fetching %s: %s", path, resp.failure())
	}

	var file struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(resp.Body, &file); err != nil {
		return "", fmt.Errorf("decoding contents response for %s: %w", path, err)
	}
	if file.Content == "" {
		return "", fmt.Errorf("empty content received for %s", path)
	}

	// GitHub wraps base64 payloads at 60 columns.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding base64 content for %s: %w", path, err)
	}
	return string(raw), nil
}

// failure renders a short human-readable cause for a non-2xx response.
func (r *Response) failure() string {
	if r.StatusCode == 0 {
		if r.Err != nil {
			return r.Err.Error()
		}
		return "no response"
	}
	return fmt.Sprintf("HTTP %d", r.StatusCode)
}
