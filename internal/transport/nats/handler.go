package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"tokenomy/internal/service"
)

// EarnCommand is the inbound earn-credit message published by the platform
// adapter (chat rewards, voice activity rewards and the like).
type EarnCommand struct {
	AccountID   string `json:"account_id"`
	CommunityID string `json:"community_id"`
	Amount      int64  `json:"amount"`
	Source      string `json:"source"`
	Description string `json:"description"`
}

// Handler consumes inbound command topics and delegates to the ledger. The
// queue group shares work across instances: one message, one consumer.
type Handler struct {
	ledger *service.Ledger
	nc     *nats.Conn
	subs   []*nats.Subscription
}

func NewHandler(ledger *service.Ledger, nc *nats.Conn) *Handler {
	return &Handler{ledger: ledger, nc: nc}
}

// Start subscribes to the earn topic and blocks until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(service.TopicEarn, "economy_group", func(m *nats.Msg) {
		var cmd EarnCommand
		if err := json.Unmarshal(m.Data, &cmd); err != nil {
			slog.Error("nats: failed to unmarshal earn command", "error", err)
			return
		}
		if _, err := h.ledger.Credit(ctx, cmd.AccountID, cmd.CommunityID, cmd.Amount, cmd.Source, cmd.Description); err != nil {
			slog.Error("nats: earn credit failed",
				"account_id", cmd.AccountID,
				"community_id", cmd.CommunityID,
				"amount", cmd.Amount,
				"error", err,
			)
			return
		}
		slog.Debug("nats: earn credited", "account_id", cmd.AccountID, "amount", cmd.Amount)
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS command handler is running")

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
