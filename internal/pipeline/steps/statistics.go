package steps

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/pipeline"
	"harvester/internal/store"
)

// StatisticsProvider recounts the subject's facts into the statistics row.
// The score and its outbox event are the next step's job, so a score
// failure never loses the recount.
type StatisticsProvider struct {
	deps Deps
}

func (p *StatisticsProvider) Order() int   { return 60 }
func (p *StatisticsProvider) Name() string { return "compute-statistics" }

func (p *StatisticsProvider) Build() pipeline.Step {
	return &pipeline.TaskletStep{
		StepName: p.Name(),
		Fn: func(ctx context.Context, rc *pipeline.RunContext) error {
			commits, issues, prs, repos, err := p.deps.Store.Facts.FactCounts(ctx, rc.SubjectID)
			if err != nil {
				return fmt.Errorf("failed to count facts: %w", err)
			}

			err = p.deps.Store.Statistics.SaveStatistics(ctx, &store.Statistics{
				SubjectID:    rc.SubjectID,
				Commits:      commits,
				Issues:       issues,
				PullRequests: prs,
				Repositories: repos,
				ComputedAt:   time.Now().UTC(),
			}, nil)
			if err != nil {
				return fmt.Errorf("failed to save statistics: %w", err)
			}

			p.deps.Logger.Info("statistics computed", "subject", rc.SubjectID,
				"commits", commits, "issues", issues, "pull_requests", prs, "repos", repos)
			return nil
		},
	}
}
