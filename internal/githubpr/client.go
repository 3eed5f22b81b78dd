package githubpr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"prreview-backend/internal/shared/telemetry"
)

// Client fetches pull request metadata and diffs from the GitHub API.
type Client struct {
	gh *gogithub.Client
}

// NewClient builds a GitHub API client. An empty token yields an
// unauthenticated client limited to public repositories.
func NewClient(token string) *Client {
	if token == "" {
		return &Client{gh: gogithub.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Client{gh: gogithub.NewClient(tc)}
}

// NewClientWithHTTP builds a client over a caller-supplied HTTP client,
// used by tests to point at a stub server.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) (*Client, error) {
	gh := gogithub.NewClient(httpClient)
	if baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring base URL: %w", err)
		}
	}
	return &Client{gh: gh}, nil
}

// GetPullRequestData fetches pull request metadata for the given repository
// URL and PR number.
func (c *Client) GetPullRequestData(ctx context.Context, repoURL string, prNumber int) (*PRData, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("getting repo %s/%s: %w", owner, name, err)
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, name, prNumber)
	if err != nil {
		return nil, fmt.Errorf("getting PR %s/%s#%d: %w", owner, name, prNumber, err)
	}

	data := &PRData{
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		State:        pr.GetState(),
		Author:       pr.GetUser().GetLogin(),
		CreatedAt:    pr.GetCreatedAt().Format(time.RFC3339),
		UpdatedAt:    pr.GetUpdatedAt().Format(time.RFC3339),
		BaseBranch:   pr.GetBase().GetRef(),
		HeadBranch:   pr.GetHead().GetRef(),
		BaseSHA:      pr.GetBase().GetSHA(),
		HeadSHA:      pr.GetHead().GetSHA(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		Commits:      pr.GetCommits(),
		URL:          pr.GetHTMLURL(),
		Repository: RepositoryInfo{
			Name:        repo.GetName(),
			FullName:    repo.GetFullName(),
			Owner:       owner,
			Language:    repo.GetLanguage(),
			Description: repo.GetDescription(),
		},
	}

	telemetry.Info("githubpr.pr_data_fetched", map[string]any{
		"repo_url":      repoURL,
		"pr_number":     prNumber,
		"changed_files": data.ChangedFiles,
		"additions":     data.Additions,
		"deletions":     data.Deletions,
	})
	return data, nil
}

// GetPullRequestDiffs fetches the changed files for a pull request,
// including file contents for added or modified files with a detected
// language.
func (c *Client) GetPullRequestDiffs(ctx context.Context, repoURL string, prNumber int) ([]FileDiff, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, name, prNumber)
	if err != nil {
		return nil, fmt.Errorf("getting PR %s/%s#%d: %w", owner, name, prNumber, err)
	}
	headSHA := pr.GetHead().GetSHA()

	var files []*gogithub.CommitFile
	opts := &gogithub.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, name, prNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for PR %s/%s#%d: %w", owner, name, prNumber, err)
		}
		files = append(files, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	diffs := make([]FileDiff, 0, len(files))
	for _, f := range files {
		diff := FileDiff{
			Filename:    f.GetFilename(),
			Status:      f.GetStatus(),
			Additions:   f.GetAdditions(),
			Deletions:   f.GetDeletions(),
			Changes:     f.GetChanges(),
			Patch:       f.GetPatch(),
			Language:    DetectLanguage(f.GetFilename()),
			BlobURL:     f.GetBlobURL(),
			RawURL:      f.GetRawURL(),
			ContentsURL: f.GetContentsURL(),
		}

		if (diff.Status == "added" || diff.Status == "modified") && diff.Language != "" {
			content, err := c.fileContent(ctx, owner, name, diff.Filename, headSHA)
			if err != nil {
				telemetry.Error("githubpr.content_fetch_failed", map[string]any{
					"filename": diff.Filename,
					"error":    err.Error(),
				})
			} else {
				diff.Content = &content
			}
		}

		diffs = append(diffs, diff)
	}

	telemetry.Info("githubpr.pr_diffs_fetched", map[string]any{
		"repo_url":    repoURL,
		"pr_number":   prNumber,
		"total_files": len(diffs),
	})
	return diffs, nil
}

func (c *Client) fileContent(ctx context.Context, owner, name, path, ref string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, name, path, &gogithub.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("getting contents of %s: %w", path, err)
	}
	if file == nil {
		return "", fmt.Errorf("%s is not a file", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding contents of %s: %w", path, err)
	}
	return content, nil
}
