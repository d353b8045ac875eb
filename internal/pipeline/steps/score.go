package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"harvester/internal/pipeline"
	"harvester/internal/stats"
	"harvester/internal/store"
	"harvester/pkg/api"
)

// ScoreProvider scores the freshly recounted statistics and enqueues the
// evaluation request. The statistics row and the outbox message commit in
// one transaction: a score that was saved is a score that will be
// evaluated, eventually.
type ScoreProvider struct {
	deps Deps
}

func (p *ScoreProvider) Order() int   { return 70 }
func (p *ScoreProvider) Name() string { return "score-and-request-evaluation" }

func (p *ScoreProvider) Build() pipeline.Step {
	return &pipeline.TaskletStep{
		StepName: p.Name(),
		Fn: func(ctx context.Context, rc *pipeline.RunContext) error {
			current, err := p.deps.Store.Statistics.GetStatistics(ctx, rc.SubjectID)
			if err != nil {
				return fmt.Errorf("failed to load statistics: %w", err)
			}
			if current == nil {
				return fmt.Errorf("no statistics row for subject %d", rc.SubjectID)
			}

			current.Score = stats.Score(current.Commits, current.Issues, current.PullRequests, current.Repositories)
			current.ComputedAt = time.Now().UTC()

			messageID := uuid.NewString()
			payload, err := json.Marshal(api.EvaluationRequest{
				MessageID: messageID,
				UserID:    rc.SubjectID,
				Score:     current.Score,
			})
			if err != nil {
				return fmt.Errorf("failed to encode evaluation request: %w", err)
			}

			err = p.deps.Store.Statistics.SaveStatistics(ctx, current, &store.OutboxMessage{
				MessageID: messageID,
				EventType: api.EventEvaluationRequest,
				Payload:   payload,
			})
			if err != nil {
				return fmt.Errorf("failed to save score: %w", err)
			}

			p.deps.Logger.Info("evaluation requested", "subject", rc.SubjectID,
				"score", current.Score, "message_id", messageID)
			return nil
		},
	}
}
