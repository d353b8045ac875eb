// Package api defines the wire types shared between the harvester, its
// trigger producers, and downstream event consumers.
package api

// Event types routed by the outbox publisher. The set is a closed
// allow-list; an unknown type is a programming error on the producer side.
const (
	EventEvaluationRequest   = "evaluation-request"
	EventEvaluationCompleted = "evaluation-completed"
	EventBalanceChanged      = "balance-changed"
)

// TriggerFieldUserID is the field name of a collection trigger stream entry.
const TriggerFieldUserID = "userId"

// EvaluationRequest asks the consumer to evaluate a subject's freshly
// computed statistics against the achievement catalog.
type EvaluationRequest struct {
	MessageID string  `json:"messageId"`
	UserID    int64   `json:"userId"`
	Score     float64 `json:"score"`
}

// EvaluationCompleted reports one newly earned achievement.
type EvaluationCompleted struct {
	MessageID       string `json:"messageId"`
	UserID          int64  `json:"userId"`
	AchievementName string `json:"achievementName"`
	PointsAwarded   int    `json:"pointsAwarded"`
}

// BalanceChanged reports a point grant or deduction.
type BalanceChanged struct {
	MessageID string `json:"messageId"`
	UserID    int64  `json:"userId"`
	Amount    int    `json:"amount"`
	Reason    string `json:"reason"`
}
