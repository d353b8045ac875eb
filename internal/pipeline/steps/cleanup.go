package steps

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/pipeline"
)

// CleanupProvider closes out the run by stamping the subject's collection
// metadata. It runs last so the stamp only moves when every prior step
// terminated without error.
type CleanupProvider struct {
	deps Deps
}

func (p *CleanupProvider) Order() int   { return 90 }
func (p *CleanupProvider) Name() string { return "finalize-collection" }

func (p *CleanupProvider) Build() pipeline.Step {
	return &pipeline.TaskletStep{
		StepName: p.Name(),
		Fn: func(ctx context.Context, rc *pipeline.RunContext) error {
			if err := p.deps.Store.Metadata.TouchCollection(ctx, rc.SubjectID, nil, time.Now().UTC()); err != nil {
				return fmt.Errorf("failed to stamp collection metadata: %w", err)
			}

			if resetAt, ok := p.deps.Client.LastRateLimitReset(); ok {
				if err := p.deps.Store.Metadata.UpdateRateLimitReset(ctx, rc.SubjectID, resetAt); err != nil {
					return fmt.Errorf("failed to record rate limit reset: %w", err)
				}
			}
			return nil
		},
	}
}
