package steps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"harvester/internal/pipeline"
)

// CredentialProvider resolves the subject's login and API token into the
// run context. It runs first; the mining steps soft-skip when the token
// turned out to be empty.
type CredentialProvider struct {
	deps Deps
}

func (p *CredentialProvider) Order() int   { return 10 }
func (p *CredentialProvider) Name() string { return "resolve-credentials" }

func (p *CredentialProvider) Build() pipeline.Step {
	return &pipeline.TaskletStep{
		StepName: p.Name(),
		Fn: func(ctx context.Context, rc *pipeline.RunContext) error {
			subject, err := p.deps.Store.Subjects.GetSubject(ctx, rc.SubjectID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("subject %d not registered", rc.SubjectID)
			}
			if err != nil {
				return fmt.Errorf("failed to load subject %d: %w", rc.SubjectID, err)
			}

			rc.Login = subject.Login
			rc.Token = subject.Token
			rc.NodeID = subject.NodeID

			if rc.Token == "" {
				// Expected steady-state condition, not a bug: the user
				// revoked or never granted a token.
				p.deps.Logger.Warn("subject has no token, mining will be skipped",
					"subject", rc.SubjectID, "login", rc.Login)
			}
			return nil
		},
	}
}
