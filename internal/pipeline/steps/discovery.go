package steps

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/pipeline"
	"harvester/internal/store"
)

// DiscoveryProvider finds the repositories the subject contributed to and
// stores them both as facts and in the run context for the mining steps.
type DiscoveryProvider struct {
	deps Deps
}

func (p *DiscoveryProvider) Order() int   { return 20 }
func (p *DiscoveryProvider) Name() string { return "repository-discovery" }

func (p *DiscoveryProvider) Build() pipeline.Step {
	return &pipeline.TaskletStep{
		StepName: p.Name(),
		Fn:       p.execute,
	}
}

func (p *DiscoveryProvider) execute(ctx context.Context, rc *pipeline.RunContext) error {
	result, err := p.deps.Client.FetchContributedRepos(ctx, rc.Login, rc.Token)
	if err != nil {
		return fmt.Errorf("failed to discover repositories: %w", err)
	}
	if result == nil {
		// Empty-token sentinel: skip this subject this run.
		return nil
	}

	if result.NodeID != "" && result.NodeID != rc.NodeID {
		rc.NodeID = result.NodeID
		if err := p.deps.Store.NodeIDs.UpdateSubjectNodeID(ctx, rc.SubjectID, result.NodeID); err != nil {
			return fmt.Errorf("failed to persist node id: %w", err)
		}
	}

	now := time.Now().UTC()
	for _, repo := range result.Repositories {
		if repo.NameWithOwner == "" {
			continue
		}
		err := p.deps.Store.Facts.UpsertContributedRepo(ctx, &store.ContributedRepo{
			SubjectID:   rc.SubjectID,
			Repository:  repo.NameWithOwner,
			Stars:       repo.StargazerCount,
			IsFork:      repo.IsFork,
			CollectedAt: now,
		})
		if err != nil {
			return err
		}
		rc.Repos = append(rc.Repos, repo.NameWithOwner)
		p.deps.Metrics.FactWritten(ctx, "repo")
	}

	p.deps.Logger.Info("repositories discovered", "subject", rc.SubjectID, "count", len(rc.Repos))
	return nil
}
