package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"harvester/internal/github"
	"harvester/internal/pipeline"
	"harvester/internal/store"
)

// CommitProvider mines the subject's commits on the default branch of
// every discovered repository.
type CommitProvider struct {
	deps Deps
}

func (p *CommitProvider) Order() int   { return 50 }
func (p *CommitProvider) Name() string { return "mine-commits" }

func (p *CommitProvider) Build() pipeline.Step {
	return &pipeline.ChunkedStep{
		StepName: p.Name(),
		Config:   p.deps.Config,
		Logger:   p.deps.Logger,
		Metrics:  p.deps.Metrics,
		Read:     p.read,
		Process:  p.process,
	}
}

// repoCommit pairs a commit with the repository it was mined from, since
// the history connection itself does not carry the repository name.
type repoCommit struct {
	Repository string
	Node       github.CommitNode
}

func (p *CommitProvider) read(ctx context.Context, rc *pipeline.RunContext) ([]any, error) {
	var items []any
	for _, repo := range rc.Repos {
		owner, name, ok := splitRepo(repo)
		if !ok {
			p.deps.Logger.Warn("skipping repository with malformed name", "repository", repo)
			continue
		}

		nodes, err := p.deps.Client.FetchRepositoryCommits(ctx, owner, name, rc.NodeID, rc.Token)
		if err != nil {
			// One unreadable repository should not lose the commits of
			// every other repository in the run.
			p.deps.Logger.Warn("skipping unreadable repository", "repository", repo, "error", err)
			continue
		}
		for _, n := range nodes {
			items = append(items, repoCommit{Repository: repo, Node: n})
		}
	}
	return items, nil
}

func (p *CommitProvider) process(ctx context.Context, rc *pipeline.RunContext, item any) error {
	rcm := item.(repoCommit)
	if rcm.Node.OID == "" {
		return &pipeline.BadItem{Err: fmt.Errorf("commit without sha in %s", rcm.Repository)}
	}

	exists, err := p.deps.Store.Facts.CommitExists(ctx, rc.SubjectID, rcm.Repository, rcm.Node.OID)
	if err != nil {
		return &pipeline.Transient{Err: err}
	}
	if exists {
		return nil
	}

	err = p.deps.Store.Facts.InsertCommit(ctx, &store.Commit{
		SubjectID:   rc.SubjectID,
		Repository:  rcm.Repository,
		SHA:         rcm.Node.OID,
		Message:     rcm.Node.Message,
		Additions:   rcm.Node.Additions,
		Deletions:   rcm.Node.Deletions,
		CommittedAt: rcm.Node.CommittedDate,
		CollectedAt: time.Now().UTC(),
	})
	if err != nil {
		return &pipeline.Transient{Err: err}
	}

	p.deps.Metrics.FactWritten(ctx, "commit")
	return nil
}

func splitRepo(nameWithOwner string) (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(nameWithOwner, "/")
	return owner, name, ok && owner != "" && name != ""
}
