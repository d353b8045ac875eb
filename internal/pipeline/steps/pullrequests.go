package steps

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/github"
	"harvester/internal/pipeline"
	"harvester/internal/store"
)

// PullRequestProvider mines the subject's pull requests in chunks.
type PullRequestProvider struct {
	deps Deps
}

func (p *PullRequestProvider) Order() int   { return 30 }
func (p *PullRequestProvider) Name() string { return "mine-pull-requests" }

func (p *PullRequestProvider) Build() pipeline.Step {
	return &pipeline.ChunkedStep{
		StepName: p.Name(),
		Config:   p.deps.Config,
		Logger:   p.deps.Logger,
		Metrics:  p.deps.Metrics,
		Read:     p.read,
		Process:  p.process,
	}
}

func (p *PullRequestProvider) read(ctx context.Context, rc *pipeline.RunContext) ([]any, error) {
	nodes, err := p.deps.Client.FetchPullRequests(ctx, rc.Login, rc.Token)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, n)
	}
	return items, nil
}

func (p *PullRequestProvider) process(ctx context.Context, rc *pipeline.RunContext, item any) error {
	node := item.(github.PullRequestNode)
	if node.Repository.NameWithOwner == "" || node.Number == 0 {
		return &pipeline.BadItem{Err: fmt.Errorf("pull request without natural key: %+v", node)}
	}

	exists, err := p.deps.Store.Facts.PullRequestExists(ctx, rc.SubjectID, node.Repository.NameWithOwner, node.Number)
	if err != nil {
		return &pipeline.Transient{Err: err}
	}
	if exists {
		return nil
	}

	err = p.deps.Store.Facts.InsertPullRequest(ctx, &store.PullRequest{
		SubjectID:   rc.SubjectID,
		Repository:  node.Repository.NameWithOwner,
		Number:      node.Number,
		Title:       node.Title,
		State:       node.State,
		Merged:      node.Merged,
		OpenedAt:    node.CreatedAt,
		CollectedAt: time.Now().UTC(),
	})
	if err != nil {
		return &pipeline.Transient{Err: err}
	}

	p.deps.Metrics.FactWritten(ctx, "pull_request")
	return nil
}
