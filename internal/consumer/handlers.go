package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"harvester/internal/broker"
	"harvester/internal/stats"
	"harvester/internal/store"
	"harvester/pkg/api"
)

// Handlers holds the event-type handlers and their storage dependencies.
// Each handler commits its side effect and the ledger row in one local
// transaction, so a crash between them is impossible to observe.
type Handlers struct {
	tx      store.TxRunner
	ledger  store.ProcessedMessageStore
	effects store.SideEffectStore
	outbox  store.OutboxStore
	logger  *slog.Logger
	clock   func() time.Time
}

func NewHandlers(tx store.TxRunner, ledger store.ProcessedMessageStore, effects store.SideEffectStore, outbox store.OutboxStore, log *slog.Logger) *Handlers {
	return &Handlers{
		tx:      tx,
		ledger:  ledger,
		effects: effects,
		outbox:  outbox,
		logger:  log,
		clock:   time.Now,
	}
}

// Map wires the handlers to their event types.
func (h *Handlers) Map() map[string]Handler {
	return map[string]Handler{
		api.EventEvaluationRequest:   h.EvaluationRequest,
		api.EventEvaluationCompleted: h.EvaluationCompleted,
		api.EventBalanceChanged:      h.BalanceChanged,
	}
}

// EvaluationRequest grades the score against the achievement catalog.
// Newly earned achievements are inserted, and each one emits a completion
// and a balance event through the outbox, all in the same transaction as
// the ledger row.
func (h *Handlers) EvaluationRequest(ctx context.Context, d broker.Delivery) error {
	var req api.EvaluationRequest
	if err := json.Unmarshal(d.Payload, &req); err != nil {
		return fmt.Errorf("malformed evaluation request: %w", err)
	}
	if req.UserID == 0 {
		return fmt.Errorf("evaluation request without user id")
	}

	var earned []stats.Achievement
	for _, a := range stats.Earned(req.Score) {
		has, err := h.effects.HasAchievement(ctx, req.UserID, a.Name)
		if err != nil {
			return fmt.Errorf("failed to check achievement %s: %w", a.Name, err)
		}
		if !has {
			earned = append(earned, a)
		}
	}

	now := h.clock().UTC()
	err := h.tx.WithTx(ctx, func(tx store.DBTransaction) error {
		for _, a := range earned {
			err := h.effects.InsertAchievement(ctx, tx, &store.Achievement{
				SubjectID: req.UserID,
				Name:      a.Name,
				Points:    a.Points,
				EarnedAt:  now,
			})
			if err != nil {
				return fmt.Errorf("failed to insert achievement %s: %w", a.Name, err)
			}

			if err := h.enqueueFollowups(ctx, tx, req.UserID, a); err != nil {
				return err
			}
		}

		return h.ledger.RecordMessage(ctx, tx, d.MessageID, d.EventType, now)
	})
	if err != nil {
		return err
	}

	h.logger.Info("evaluation processed", "subject", req.UserID,
		"score", req.Score, "new_achievements", len(earned))
	return nil
}

func (h *Handlers) enqueueFollowups(ctx context.Context, tx store.DBTransaction, userID int64, a stats.Achievement) error {
	completedID := uuid.NewString()
	completed, err := json.Marshal(api.EvaluationCompleted{
		MessageID:       completedID,
		UserID:          userID,
		AchievementName: a.Name,
		PointsAwarded:   a.Points,
	})
	if err != nil {
		return err
	}
	err = h.outbox.EnqueueOutbox(ctx, tx, &store.OutboxMessage{
		MessageID: completedID,
		EventType: api.EventEvaluationCompleted,
		Payload:   completed,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue completion event: %w", err)
	}

	balanceID := uuid.NewString()
	balance, err := json.Marshal(api.BalanceChanged{
		MessageID: balanceID,
		UserID:    userID,
		Amount:    a.Points,
		Reason:    "achievement: " + a.Name,
	})
	if err != nil {
		return err
	}
	err = h.outbox.EnqueueOutbox(ctx, tx, &store.OutboxMessage{
		MessageID: balanceID,
		EventType: api.EventBalanceChanged,
		Payload:   balance,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue balance event: %w", err)
	}

	return nil
}

// EvaluationCompleted records a notification telling the user about the
// achievement.
func (h *Handlers) EvaluationCompleted(ctx context.Context, d broker.Delivery) error {
	var evt api.EvaluationCompleted
	if err := json.Unmarshal(d.Payload, &evt); err != nil {
		return fmt.Errorf("malformed completion event: %w", err)
	}
	if evt.UserID == 0 {
		return fmt.Errorf("completion event without user id")
	}

	now := h.clock().UTC()
	return h.tx.WithTx(ctx, func(tx store.DBTransaction) error {
		err := h.effects.InsertNotification(ctx, tx, &store.Notification{
			SubjectID: evt.UserID,
			Kind:      "achievement",
			Title:     "Achievement unlocked",
			Body:      fmt.Sprintf("You earned %s (+%d points)", evt.AchievementName, evt.PointsAwarded),
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		return h.ledger.RecordMessage(ctx, tx, d.MessageID, d.EventType, now)
	})
}

// BalanceChanged records a notification about the point grant.
func (h *Handlers) BalanceChanged(ctx context.Context, d broker.Delivery) error {
	var evt api.BalanceChanged
	if err := json.Unmarshal(d.Payload, &evt); err != nil {
		return fmt.Errorf("malformed balance event: %w", err)
	}
	if evt.UserID == 0 {
		return fmt.Errorf("balance event without user id")
	}

	now := h.clock().UTC()
	return h.tx.WithTx(ctx, func(tx store.DBTransaction) error {
		err := h.effects.InsertNotification(ctx, tx, &store.Notification{
			SubjectID: evt.UserID,
			Kind:      "balance",
			Title:     "Balance updated",
			Body:      fmt.Sprintf("%+d points: %s", evt.Amount, evt.Reason),
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		return h.ledger.RecordMessage(ctx, tx, d.MessageID, d.EventType, now)
	})
}
