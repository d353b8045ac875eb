// Package stats holds the pure scoring functions applied to harvested
// facts. Nothing here touches storage or the network.
package stats

// Weights applied per fact type. Merged pull requests and commits carry
// the most signal; issue activity the least.
const (
	commitWeight      = 1.0
	issueWeight       = 0.5
	pullRequestWeight = 2.0
	repositoryWeight  = 1.5
)

// Score collapses raw fact counts into one comparable number.
func Score(commits, issues, pullRequests, repositories int) float64 {
	return float64(commits)*commitWeight +
		float64(issues)*issueWeight +
		float64(pullRequests)*pullRequestWeight +
		float64(repositories)*repositoryWeight
}

// Achievement is a threshold on the computed score.
type Achievement struct {
	Name   string
	Floor  float64
	Points int
}

// Catalog is the ordered achievement ladder, lowest floor first.
var Catalog = []Achievement{
	{Name: "first-steps", Floor: 1, Points: 10},
	{Name: "contributor", Floor: 50, Points: 50},
	{Name: "maintainer", Floor: 250, Points: 200},
	{Name: "open-source-hero", Floor: 1000, Points: 1000},
}

// Earned returns the achievements whose floors the score reaches.
func Earned(score float64) []Achievement {
	var earned []Achievement
	for _, a := range Catalog {
		if score >= a.Floor {
			earned = append(earned, a)
		}
	}
	return earned
}
