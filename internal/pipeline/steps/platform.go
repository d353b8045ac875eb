package steps

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/pipeline"
)

// platformRecountThreshold bounds how often the platform averages are
// recounted. Every run of every subject reaches this step, so without the
// gate a busy hour would recount the whole statistics table per run.
const platformRecountThreshold = time.Hour

// PlatformAverageProvider refreshes the platform-wide average row after a
// subject's own statistics were recounted.
type PlatformAverageProvider struct {
	deps Deps
}

func (p *PlatformAverageProvider) Order() int   { return 80 }
func (p *PlatformAverageProvider) Name() string { return "refresh-platform-average" }

func (p *PlatformAverageProvider) Build() pipeline.Step {
	return &pipeline.TaskletStep{
		StepName: p.Name(),
		Fn: func(ctx context.Context, rc *pipeline.RunContext) error {
			current, err := p.deps.Store.Platform.GetPlatformStatistics(ctx)
			if err != nil {
				return fmt.Errorf("failed to load platform statistics: %w", err)
			}
			if current != nil && time.Since(current.ComputedAt) < platformRecountThreshold {
				p.deps.Logger.Debug("platform averages fresh, skipping recount",
					"computed_at", current.ComputedAt)
				return nil
			}

			updated, err := p.deps.Store.Platform.RecomputePlatformStatistics(ctx, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to recompute platform statistics: %w", err)
			}

			p.deps.Logger.Info("platform averages recounted",
				"subjects", updated.Subjects, "avg_score", updated.AvgScore)
			return nil
		},
	}
}
