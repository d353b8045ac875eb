// Package steps contains the collection pipeline's step providers. Orders
// are spaced by ten so a new step can slot in without renumbering.
package steps

import (
	"context"
	"log/slog"

	"harvester/internal/github"
	"harvester/internal/observability"
	"harvester/internal/pipeline"
	"harvester/internal/store"
)

// NodeIDUpdater persists a subject's resolved GraphQL node id.
type NodeIDUpdater interface {
	UpdateSubjectNodeID(ctx context.Context, id int64, nodeID string) error
}

// StoreSet groups the narrow store interfaces the steps use. Grouping them
// keeps each provider's dependency list honest without one god interface.
type StoreSet struct {
	Subjects   store.SubjectStore
	Facts      store.FactStore
	Metadata   store.MetadataStore
	Statistics store.StatisticsStore
	Platform   store.PlatformStatisticsStore
	NodeIDs    NodeIDUpdater
}

// Deps bundles what every provider shares.
type Deps struct {
	Store   *StoreSet
	Client  *github.Client
	Config  pipeline.ChunkConfig
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// All returns every step provider in the harvester's pipeline.
func All(deps Deps) []pipeline.Provider {
	return []pipeline.Provider{
		&CredentialProvider{deps: deps},
		&DiscoveryProvider{deps: deps},
		&PullRequestProvider{deps: deps},
		&IssueProvider{deps: deps},
		&CommitProvider{deps: deps},
		&StatisticsProvider{deps: deps},
		&ScoreProvider{deps: deps},
		&PlatformAverageProvider{deps: deps},
		&CleanupProvider{deps: deps},
	}
}
