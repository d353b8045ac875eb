package github

import (
	"context"
	"fmt"
	"strings"
)

// fetchPage loads one page at the given cursor ("" for the first page) and
// reports the next cursor, or done=true when the connection is exhausted.
type fetchPage func(ctx context.Context, cursor string) (next string, done bool, err error)

// paginate walks a cursor connection until done. A failed page after at
// least one success breaks the loop without error: the caller keeps what
// was aggregated so far, because partial data beats no data for a job that
// will run again. A first-page failure surfaces as the error.
func (c *Client) paginate(ctx context.Context, kind string, fetch fetchPage) error {
	cursor := ""
	pages := 0
	for {
		next, done, err := fetch(ctx, cursor)
		if err != nil {
			if pages == 0 {
				return err
			}
			c.logger.Warn("salvaging partial pagination result",
				"kind", kind, "pages", pages, "error", err)
			return nil
		}

		pages++
		c.metrics.PageFetched(ctx, kind)
		if done {
			return nil
		}
		cursor = next
	}
}

// FetchContributedRepos aggregates every repository the subject
// contributed to, plus the subject's GraphQL node id. An empty token
// returns (nil, nil): the sentinel means "skip this subject this run",
// since a revoked token is an expected condition.
func (c *Client) FetchContributedRepos(ctx context.Context, login, token string) (*ContributedRepos, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	var result *ContributedRepos
	err := c.paginate(ctx, "contributed-repos", func(ctx context.Context, cursor string) (string, bool, error) {
		var data contributedData
		if err := c.query(ctx, contributedReposQuery, pageVars(login, cursor), token, &data); err != nil {
			return "", false, err
		}
		if data.User == nil {
			return "", false, fmt.Errorf("user %q absent from response", login)
		}

		if result == nil {
			result = &ContributedRepos{NodeID: data.User.ID}
		}
		result.Repositories = append(result.Repositories, data.User.RepositoriesContributedTo.Nodes...)

		info := data.User.RepositoriesContributedTo.PageInfo
		return info.EndCursor, !info.HasNextPage, nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// FetchPullRequests aggregates all of the subject's pull requests.
func (c *Client) FetchPullRequests(ctx context.Context, login, token string) ([]PullRequestNode, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	var nodes []PullRequestNode
	err := c.paginate(ctx, "pull-requests", func(ctx context.Context, cursor string) (string, bool, error) {
		var data pullRequestsData
		if err := c.query(ctx, pullRequestsQuery, pageVars(login, cursor), token, &data); err != nil {
			return "", false, err
		}
		if data.User == nil {
			return "", false, fmt.Errorf("user %q absent from response", login)
		}

		nodes = append(nodes, data.User.PullRequests.Nodes...)
		info := data.User.PullRequests.PageInfo
		return info.EndCursor, !info.HasNextPage, nil
	})
	if err != nil {
		return nil, err
	}

	return nodes, nil
}

// FetchIssues aggregates all of the subject's issues.
func (c *Client) FetchIssues(ctx context.Context, login, token string) ([]IssueNode, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	var nodes []IssueNode
	err := c.paginate(ctx, "issues", func(ctx context.Context, cursor string) (string, bool, error) {
		var data issuesData
		if err := c.query(ctx, issuesQuery, pageVars(login, cursor), token, &data); err != nil {
			return "", false, err
		}
		if data.User == nil {
			return "", false, fmt.Errorf("user %q absent from response", login)
		}

		nodes = append(nodes, data.User.Issues.Nodes...)
		info := data.User.Issues.PageInfo
		return info.EndCursor, !info.HasNextPage, nil
	})
	if err != nil {
		return nil, err
	}

	return nodes, nil
}

// FetchRepositoryCommits aggregates the subject's commits on a single
// repository's default branch.
func (c *Client) FetchRepositoryCommits(ctx context.Context, owner, name, authorID, token string) ([]CommitNode, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	var nodes []CommitNode
	err := c.paginate(ctx, "commits", func(ctx context.Context, cursor string) (string, bool, error) {
		variables := map[string]any{
			"owner":    owner,
			"name":     name,
			"authorId": authorID,
		}
		if cursor != "" {
			variables["after"] = cursor
		}

		var data commitsData
		if err := c.query(ctx, repositoryCommitsQuery, variables, token, &data); err != nil {
			return "", false, err
		}
		if data.Repository == nil || data.Repository.DefaultBranchRef == nil {
			// Empty repositories have no default branch; nothing to mine.
			return "", true, nil
		}

		history := data.Repository.DefaultBranchRef.Target.History
		nodes = append(nodes, history.Nodes...)
		return history.PageInfo.EndCursor, !history.PageInfo.HasNextPage, nil
	})
	if err != nil {
		return nil, err
	}

	return nodes, nil
}

func pageVars(login, cursor string) map[string]any {
	variables := map[string]any{"login": login}
	if cursor != "" {
		variables["after"] = cursor
	}
	return variables
}
