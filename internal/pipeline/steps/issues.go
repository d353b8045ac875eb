package steps

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/github"
	"harvester/internal/pipeline"
	"harvester/internal/store"
)

// IssueProvider mines the subject's issues in chunks.
type IssueProvider struct {
	deps Deps
}

func (p *IssueProvider) Order() int   { return 40 }
func (p *IssueProvider) Name() string { return "mine-issues" }

func (p *IssueProvider) Build() pipeline.Step {
	return &pipeline.ChunkedStep{
		StepName: p.Name(),
		Config:   p.deps.Config,
		Logger:   p.deps.Logger,
		Metrics:  p.deps.Metrics,
		Read:     p.read,
		Process:  p.process,
	}
}

func (p *IssueProvider) read(ctx context.Context, rc *pipeline.RunContext) ([]any, error) {
	nodes, err := p.deps.Client.FetchIssues(ctx, rc.Login, rc.Token)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, n)
	}
	return items, nil
}

func (p *IssueProvider) process(ctx context.Context, rc *pipeline.RunContext, item any) error {
	node := item.(github.IssueNode)
	if node.Repository.NameWithOwner == "" || node.Number == 0 {
		return &pipeline.BadItem{Err: fmt.Errorf("issue without natural key: %+v", node)}
	}

	exists, err := p.deps.Store.Facts.IssueExists(ctx, rc.SubjectID, node.Repository.NameWithOwner, node.Number)
	if err != nil {
		return &pipeline.Transient{Err: err}
	}
	if exists {
		return nil
	}

	err = p.deps.Store.Facts.InsertIssue(ctx, &store.Issue{
		SubjectID:   rc.SubjectID,
		Repository:  node.Repository.NameWithOwner,
		Number:      node.Number,
		Title:       node.Title,
		State:       node.State,
		OpenedAt:    node.CreatedAt,
		CollectedAt: time.Now().UTC(),
	})
	if err != nil {
		return &pipeline.Transient{Err: err}
	}

	p.deps.Metrics.FactWritten(ctx, "issue")
	return nil
}
