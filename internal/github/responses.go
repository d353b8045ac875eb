package github

import "time"

// PageInfo is the cursor metadata attached to every paginated connection.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// RepositoryNode is one repository entry in a connection.
type RepositoryNode struct {
	NameWithOwner  string `json:"nameWithOwner"`
	StargazerCount int    `json:"stargazerCount"`
	IsFork         bool   `json:"isFork"`
}

// PullRequestNode is one pull request entry.
type PullRequestNode struct {
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	State      string    `json:"state"`
	Merged     bool      `json:"merged"`
	CreatedAt  time.Time `json:"createdAt"`
	Repository struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
}

// IssueNode is one issue entry.
type IssueNode struct {
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"createdAt"`
	Repository struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
}

// CommitNode is one commit entry from a repository history connection.
type CommitNode struct {
	OID           string    `json:"oid"`
	Message       string    `json:"message"`
	Additions     int       `json:"additions"`
	Deletions     int       `json:"deletions"`
	CommittedDate time.Time `json:"committedDate"`
}

// ContributedRepos is the aggregated repositoriesContributedTo result. The
// NodeID scalar comes from the first page; the repository list is the
// concatenation of every page's nodes.
type ContributedRepos struct {
	NodeID       string
	Repositories []RepositoryNode
}

type contributedData struct {
	User *struct {
		ID                        string `json:"id"`
		RepositoriesContributedTo struct {
			PageInfo PageInfo         `json:"pageInfo"`
			Nodes    []RepositoryNode `json:"nodes"`
		} `json:"repositoriesContributedTo"`
	} `json:"user"`
}

type pullRequestsData struct {
	User *struct {
		PullRequests struct {
			PageInfo PageInfo          `json:"pageInfo"`
			Nodes    []PullRequestNode `json:"nodes"`
		} `json:"pullRequests"`
	} `json:"user"`
}

type issuesData struct {
	User *struct {
		Issues struct {
			PageInfo PageInfo    `json:"pageInfo"`
			Nodes    []IssueNode `json:"nodes"`
		} `json:"issues"`
	} `json:"user"`
}

type commitsData struct {
	Repository *struct {
		DefaultBranchRef *struct {
			Target struct {
				History struct {
					PageInfo PageInfo     `json:"pageInfo"`
					Nodes    []CommitNode `json:"nodes"`
				} `json:"history"`
			} `json:"target"`
		} `json:"defaultBranchRef"`
	} `json:"repository"`
}
