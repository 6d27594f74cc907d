// Package gitops is the source-control collaborator: path-based reads and
// optimistically-concurrent writes against a GitHub repository.
package gitops

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

type Client struct {
	gh     *github.Client
	owner  string
	repo   string
	branch string
}

func New(ctx context.Context, token, owner, repo, branch string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &Client{
		gh:     github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		branch: branch,
	}
}

// ReadFile fetches a file's decoded content plus its blob SHA. The SHA is
// the version token a later WriteFile must present.
func (c *Client) ReadFile(ctx context.Context, path string) (content, sha string, err error) {
	path = strings.TrimPrefix(path, "/")
	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&github.RepositoryContentGetOptions{Ref: c.branch})
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	if file == nil {
		return "", "", fmt.Errorf("read %s: path is a directory", path)
	}
	content, err = file.GetContent()
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", path, err)
	}
	return content, file.GetSHA(), nil
}

var fenceRE = regexp.MustCompile("(?m)^```[^\n]*\n|```\\s*$")

// StripFences removes markdown code fences an agent may wrap file content in.
func StripFences(content string) string {
	return fenceRE.ReplaceAllString(strings.TrimSpace(content), "")
}

// WriteFile commits new content for a path. sha must be the blob SHA from
// the preceding ReadFile; a stale value is rejected upstream, which is the
// optimistic-concurrency contract. Returns the new commit SHA.
func (c *Client) WriteFile(ctx context.Context, path, content, message, sha string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if message == "" {
		message = "Update " + path
	}
	resp, _, err := c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, path,
		&github.RepositoryContentFileOptions{
			Message: github.String(message),
			Content: []byte(StripFences(content)),
			SHA:     github.String(sha),
			Branch:  github.String(c.branch),
		})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return resp.Commit.GetSHA(), nil
}
