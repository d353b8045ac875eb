// Package pipeline composes ordered, fault-tolerant steps into one
// collection job per subject.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"harvester/internal/logger"
)

// RunContext carries per-run state between steps. Earlier steps fill in
// what later steps need; a step that finds its inputs missing soft-skips
// instead of failing the job.
type RunContext struct {
	SubjectID int64
	RunID     string

	// Filled by the credential step.
	Login string
	Token string

	// Filled by the discovery step.
	NodeID string
	Repos  []string
}

// Step is one unit of the composed job.
type Step interface {
	Name() string
	Execute(ctx context.Context, rc *RunContext) error
}

// Provider exposes a step with its position in the pipeline. Registration
// is explicit; composition order is the ascending Order value.
type Provider interface {
	Order() int
	Name() string
	Build() Step
}

// Registry collects providers and composes them into a runnable job.
type Registry struct {
	providers []Provider
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Compose returns the pipeline steps sorted by ascending order. With no
// providers registered it returns a single placeholder step, so a partial
// deployment still produces a structurally valid job.
func (r *Registry) Compose() *Job {
	if len(r.providers) == 0 {
		r.logger.Warn("no step providers registered, composing placeholder job")
		return &Job{steps: []Step{placeholderStep{}}, logger: r.logger}
	}

	sorted := make([]Provider, len(r.providers))
	copy(sorted, r.providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})

	steps := make([]Step, 0, len(sorted))
	for _, p := range sorted {
		steps = append(steps, p.Build())
	}

	return &Job{steps: steps, logger: r.logger}
}

// Job is the composed linear pipeline.
type Job struct {
	steps  []Step
	logger *slog.Logger
}

// Run executes the steps in order. Step i+1 starts only after step i
// terminates; the first step error fails the job.
func (j *Job) Run(ctx context.Context, rc *RunContext) error {
	log := logger.FromContext(ctx, j.logger)
	for _, step := range j.steps {
		log.Info("step starting", "step", step.Name(), "subject", rc.SubjectID)

		if err := step.Execute(ctx, rc); err != nil {
			return fmt.Errorf("step %s: %w", step.Name(), err)
		}

		log.Info("step finished", "step", step.Name(), "subject", rc.SubjectID)
	}
	return nil
}

// StepNames lists the composed step names in execution order.
func (j *Job) StepNames() []string {
	names := make([]string, 0, len(j.steps))
	for _, s := range j.steps {
		names = append(names, s.Name())
	}
	return names
}

type placeholderStep struct{}

func (placeholderStep) Name() string { return "placeholder" }

func (placeholderStep) Execute(ctx context.Context, rc *RunContext) error {
	slog.Warn("placeholder step executed, no real work registered", "subject", rc.SubjectID)
	return nil
}

// TaskletStep runs a function once per job run, for context-setup actions
// that do not operate over a collection.
type TaskletStep struct {
	StepName string
	Fn       func(ctx context.Context, rc *RunContext) error
}

func (t *TaskletStep) Name() string { return t.StepName }

func (t *TaskletStep) Execute(ctx context.Context, rc *RunContext) error {
	return t.Fn(ctx, rc)
}
