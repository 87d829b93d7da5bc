package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tokenomy/internal/metrics"
	"tokenomy/internal/model"
	"tokenomy/internal/ratelimit"
	"tokenomy/internal/repository"
)

// Effector performs the platform side effect of an action: the rename, the
// mute, the disconnect. The engine only learns success or failure; the
// platform adapter owns the implementation.
type Effector interface {
	Execute(ctx context.Context, communityID, targetID string, params map[string]string) error
}

// EffectorFunc adapts a function to the Effector interface.
type EffectorFunc func(ctx context.Context, communityID, targetID string, params map[string]string) error

func (f EffectorFunc) Execute(ctx context.Context, communityID, targetID string, params map[string]string) error {
	return f(ctx, communityID, targetID, params)
}

// Authorizer decides whether the acting agent's capabilities cover an
// action's requirements.
type Authorizer interface {
	Authorize(ctx context.Context, communityID string, required []string) error
}

// StaticAuthorizer grants a fixed capability set, typically the capabilities
// the platform granted the hosting agent at install time.
type StaticAuthorizer struct {
	granted map[string]bool
}

func NewStaticAuthorizer(capabilities []string) *StaticAuthorizer {
	granted := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		granted[c] = true
	}
	return &StaticAuthorizer{granted: granted}
}

func (a *StaticAuthorizer) Authorize(_ context.Context, _ string, required []string) error {
	for _, c := range required {
		if !a.granted[c] {
			return fmt.Errorf("missing capability %q", c)
		}
	}
	return nil
}

// PerformRequest is one action invocation.
type PerformRequest struct {
	ActorID     string            `json:"actor_id"`
	TargetID    string            `json:"target_id"`
	ActionID    string            `json:"action_id"`
	CommunityID string            `json:"community_id"`
	Params      map[string]string `json:"params,omitempty"`
	// Privileged executions charge nothing and generate no dividends, but
	// still set the cooldown and count toward usage.
	Privileged bool `json:"privileged,omitempty"`
}

// ActionResult is the structured outcome of a Perform call. Business
// rejections land here with Success=false; only storage and wiring problems
// surface as Go errors.
type ActionResult struct {
	Success       bool      `json:"success"`
	Code          string    `json:"code"`
	Message       string    `json:"message"`
	CostCharged   int64     `json:"cost_charged"`
	NewBalance    int64     `json:"new_balance,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

func failure(code, message string) *ActionResult {
	return &ActionResult{Code: code, Message: message}
}

// errCooldownHeld aborts the charge unit when the atomic re-check finds an
// existing reservation.
var errCooldownHeld = errors.New("cooldown held")

// ActionEngineConfig wires an ActionEngine. Dividends, Limiter and Metrics
// are optional.
type ActionEngineConfig struct {
	Store        repository.Store
	Catalog      *Catalog
	Effectors    map[string]Effector
	Authorizer   Authorizer
	Dividends    *ShareMarket
	Limiter      ratelimit.Limiter
	Metrics      *metrics.Collector
	Bus          EventBus
	SystemOwners []string
	Now          func() time.Time
}

// ActionEngine runs the action pipeline: validate, authorize, charge,
// execute, log, cooldown.
type ActionEngine struct {
	store        repository.Store
	catalog      *Catalog
	effectors    map[string]Effector
	authorizer   Authorizer
	dividends    *ShareMarket
	limiter      ratelimit.Limiter
	metrics      *metrics.Collector
	bus          EventBus
	systemOwners map[string]bool
	now          func() time.Time
}

// NewActionEngine validates the effector registry against the catalog: every
// catalog action must have a handler, so an unknown id fails at boot instead
// of at call time.
func NewActionEngine(cfg ActionEngineConfig) (*ActionEngine, error) {
	if cfg.Store == nil || cfg.Catalog == nil || cfg.Authorizer == nil {
		return nil, errors.New("action engine: store, catalog and authorizer are required")
	}
	for _, a := range cfg.Catalog.All() {
		if _, ok := cfg.Effectors[a.ID]; !ok {
			return nil, fmt.Errorf("action engine: no effector registered for action %q", a.ID)
		}
	}
	for id := range cfg.Effectors {
		if _, ok := cfg.Catalog.Get(id); !ok {
			return nil, fmt.Errorf("action engine: effector %q has no catalog entry", id)
		}
	}
	owners := make(map[string]bool, len(cfg.SystemOwners))
	for _, id := range cfg.SystemOwners {
		owners[id] = true
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ActionEngine{
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		effectors:    cfg.Effectors,
		authorizer:   cfg.Authorizer,
		dividends:    cfg.Dividends,
		limiter:      cfg.Limiter,
		metrics:      cfg.Metrics,
		bus:          cfg.Bus,
		systemOwners: owners,
		now:          now,
	}, nil
}

// ActionPrice is one catalog entry with its effective price in a community.
type ActionPrice struct {
	Action       model.Action `json:"action"`
	CurrentPrice int64        `json:"current_price"`
}

// ListEnabledActions returns the community's enabled actions with effective
// prices, in catalog order.
func (e *ActionEngine) ListEnabledActions(ctx context.Context, communityID string) ([]ActionPrice, error) {
	cfg, err := e.store.Communities().Get(ctx, communityID)
	if err != nil {
		return nil, err
	}
	var out []ActionPrice
	for _, a := range e.catalog.All() {
		if !cfg.ActionEnabled(a.ID) {
			continue
		}
		out = append(out, ActionPrice{Action: a, CurrentPrice: cfg.Price(a.ID, a.BaseCost)})
	}
	return out, nil
}

// GetActionPrice resolves the effective price of one action.
func (e *ActionEngine) GetActionPrice(ctx context.Context, communityID, actionID string) (int64, error) {
	action, ok := e.catalog.Get(actionID)
	if !ok {
		return 0, fmt.Errorf("%w: action %q", repository.ErrNotFound, actionID)
	}
	cfg, err := e.store.Communities().Get(ctx, communityID)
	if err != nil {
		return 0, err
	}
	return cfg.Price(actionID, action.BaseCost), nil
}

// Perform runs the full pipeline for one invocation.
func (e *ActionEngine) Perform(ctx context.Context, req PerformRequest) (*ActionResult, error) {
	started := e.now()
	result, err := e.perform(ctx, req)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordAction(req.ActionID, result.Code, e.now().Sub(started))
	if !result.Success {
		slog.Info("action rejected",
			"action", req.ActionID,
			"actor", req.ActorID,
			"community", req.CommunityID,
			"code", result.Code,
		)
	}
	return result, nil
}

func (e *ActionEngine) perform(ctx context.Context, req PerformRequest) (*ActionResult, error) {
	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, req.ActorID+":"+req.ActionID)
		if err != nil {
			// A broken limiter backend should not freeze the whole economy.
			slog.Warn("action engine: rate limiter unavailable", "error", err)
		} else if !allowed {
			return failure(CodeRateLimited, "too many attempts, slow down"), nil
		}
	}

	action, ok := e.catalog.Get(req.ActionID)
	if !ok {
		return failure(CodeActionNotFound, fmt.Sprintf("unknown action %q", req.ActionID)), nil
	}
	cfg, err := e.store.Communities().Get(ctx, req.CommunityID)
	if err != nil {
		return nil, err
	}

	// Validate.
	if !cfg.ActionEnabled(action.ID) {
		return failure(CodeActionDisabled, fmt.Sprintf("%s is disabled here", action.Name)), nil
	}
	if req.ActorID == req.TargetID {
		return failure(CodeSelfTarget, "cannot target yourself"), nil
	}
	if req.TargetID == cfg.OwnerID || e.systemOwners[req.TargetID] {
		return failure(CodeProtectedTarget, "target is protected"), nil
	}
	if cfg.Blacklisted(req.TargetID) {
		return failure(CodeProtectedTarget, "target is not eligible"), nil
	}
	if cfg.Blacklisted(req.ActorID) {
		return failure(CodeAuthorizationDenied, "actor is blacklisted"), nil
	}
	now := e.now()
	cd, err := e.store.Cooldowns().Active(ctx, req.ActorID, req.CommunityID, action.ID, now)
	if err != nil {
		return nil, err
	}
	if cd != nil {
		remaining := cd.ExpiresAt.Sub(now).Round(time.Second)
		return &ActionResult{
			Code:          CodeOnCooldown,
			Message:       fmt.Sprintf("%s available again in %s", action.Name, remaining),
			CooldownUntil: cd.ExpiresAt,
		}, nil
	}

	// Authorize. Nothing has been charged yet.
	if err := e.authorizer.Authorize(ctx, req.CommunityID, action.Capabilities); err != nil {
		return failure(CodeAuthorizationDenied, err.Error()), nil
	}

	// Charge and reserve the cooldown in one unit. The re-check under Atomic
	// is the authoritative one: a second invocation racing past the read
	// above finds the reservation and stops, instead of charging and
	// executing twice.
	price := cfg.Price(action.ID, action.BaseCost)
	expiresAt := now.Add(cfg.CooldownFor(action.ID, action.Cooldown))
	var charged int64
	var raced *model.Cooldown
	chargeTx := &model.Transaction{
		AccountID:   req.ActorID,
		CommunityID: req.CommunityID,
		Kind:        model.KindSpend,
		Amount:      -price,
		Action:      action.ID,
		TargetID:    req.TargetID,
		Description: action.Name,
	}
	err = e.store.Atomic(ctx, func(s repository.Store) error {
		cd, err := s.Cooldowns().Active(ctx, req.ActorID, req.CommunityID, action.ID, now)
		if err != nil {
			return err
		}
		if cd != nil {
			raced = cd
			return errCooldownHeld
		}
		if err := s.Cooldowns().Set(ctx, model.Cooldown{
			AccountID:   req.ActorID,
			CommunityID: req.CommunityID,
			ActionID:    action.ID,
			ExpiresAt:   expiresAt,
		}); err != nil {
			return err
		}
		if req.Privileged {
			return nil
		}
		_, err = applyTx(ctx, s, chargeTx)
		return err
	})
	switch {
	case errors.Is(err, errCooldownHeld):
		remaining := raced.ExpiresAt.Sub(now).Round(time.Second)
		return &ActionResult{
			Code:          CodeOnCooldown,
			Message:       fmt.Sprintf("%s available again in %s", action.Name, remaining),
			CooldownUntil: raced.ExpiresAt,
		}, nil
	case errors.Is(err, repository.ErrInsufficientFunds):
		// The cooldown reservation rolled back with the charge.
		return &ActionResult{
			Code:        CodeInsufficientFunds,
			Message:     fmt.Sprintf("%s costs %d tokens", action.Name, price),
			CostCharged: 0,
		}, nil
	case err != nil:
		return nil, err
	}
	if !req.Privileged {
		charged = price
	}

	// Execute. On failure the charge is reversed and the cooldown reservation
	// released, so the caller observes the pre-call state.
	if err := e.effectors[action.ID].Execute(ctx, req.CommunityID, req.TargetID, req.Params); err != nil {
		if revertErr := e.revert(ctx, req, action, charged); revertErr != nil {
			return nil, fmt.Errorf("action %s failed (%v) and revert failed: %w", action.ID, err, revertErr)
		}
		return failure(CodeExecutionFailed, err.Error()), nil
	}

	if err := e.store.Usage().Track(ctx, req.CommunityID, action.ID, now); err != nil {
		return nil, err
	}

	if charged > 0 && e.dividends != nil {
		if _, err := e.dividends.DistributeDividends(ctx, req.CommunityID, charged); err != nil {
			// The action itself succeeded; holders catch up on the next spend.
			slog.Error("action engine: dividend distribution failed",
				"community", req.CommunityID, "action", action.ID, "error", err)
		}
	}

	if charged > 0 {
		e.metrics.RecordTransaction(string(model.KindSpend))
		e.publish(TopicTransactions, chargeTx)
	}

	balance, err := e.store.Accounts().Get(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		Success:       true,
		Code:          CodeOK,
		Message:       fmt.Sprintf("%s executed", action.Name),
		CostCharged:   charged,
		NewBalance:    balance.Balance,
		CooldownUntil: expiresAt,
	}, nil
}

func (e *ActionEngine) publish(topic string, payload any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("action engine: marshal event", "topic", topic, "error", err)
		return
	}
	if err := e.bus.Publish(topic, data); err != nil {
		slog.Warn("action engine: publish event", "topic", topic, "error", err)
	}
}

// revert undoes a charge whose execution failed: the cooldown reservation is
// released and the spent amount earned back, in one unit.
func (e *ActionEngine) revert(ctx context.Context, req PerformRequest, action model.Action, amount int64) error {
	return e.store.Atomic(ctx, func(s repository.Store) error {
		if err := s.Cooldowns().Clear(ctx, req.ActorID, req.CommunityID, action.ID); err != nil {
			return err
		}
		if amount <= 0 {
			return nil
		}
		_, err := applyTx(ctx, s, &model.Transaction{
			AccountID:   req.ActorID,
			CommunityID: req.CommunityID,
			Kind:        model.KindEarn,
			Amount:      amount,
			Action:      action.ID,
			TargetID:    req.TargetID,
			Description: fmt.Sprintf("refund: %s failed", action.Name),
		})
		return err
	})
}
