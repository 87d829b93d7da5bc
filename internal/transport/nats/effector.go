package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Effector asks the platform adapter to perform a side effect over NATS
// request-reply. The adapter listens on effects.<action_id> and answers with
// an effectReply; no reply within the context deadline fails the execution,
// which makes the action engine refund the charge.
type Effector struct {
	nc       *nats.Conn
	actionID string
}

func NewEffector(nc *nats.Conn, actionID string) *Effector {
	return &Effector{nc: nc, actionID: actionID}
}

type effectRequest struct {
	ActionID    string            `json:"action_id"`
	CommunityID string            `json:"community_id"`
	TargetID    string            `json:"target_id"`
	Params      map[string]string `json:"params,omitempty"`
}

type effectReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (e *Effector) Execute(ctx context.Context, communityID, targetID string, params map[string]string) error {
	data, err := json.Marshal(effectRequest{
		ActionID:    e.actionID,
		CommunityID: communityID,
		TargetID:    targetID,
		Params:      params,
	})
	if err != nil {
		return fmt.Errorf("marshal effect request: %w", err)
	}
	msg, err := e.nc.RequestWithContext(ctx, "effects."+e.actionID, data)
	if err != nil {
		return fmt.Errorf("effect %s: %w", e.actionID, err)
	}
	var reply effectReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("decode effect reply: %w", err)
	}
	if !reply.Success {
		if reply.Error == "" {
			reply.Error = "platform adapter rejected the effect"
		}
		return errors.New(reply.Error)
	}
	return nil
}
