package claims

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campuskeep/campuskeep/pkg/audit"
	"github.com/campuskeep/campuskeep/pkg/policy"
)

// Lifecycle validates transitions and evidence, asks the policy engine for
// the actor's right to trigger them, and persists through conditional
// writes. It holds no per-request state and is safe for concurrent use.
type Lifecycle struct {
	engine   *policy.Engine
	store    Store
	recorder audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewLifecycle wires a lifecycle. A nil recorder disables audit; a nil
// logger falls back to slog.Default.
func NewLifecycle(engine *policy.Engine, store Store, recorder audit.Recorder, logger *slog.Logger) *Lifecycle {
	if recorder == nil {
		recorder = audit.NewNop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		engine:   engine,
		store:    store,
		recorder: recorder,
		logger:   logger.With("component", "claims"),
		now:      time.Now,
	}
}

// Submit records a new claim for the acting subject. The claimant is always
// the subject; claims cannot be submitted on behalf of someone else.
func (l *Lifecycle) Submit(ctx context.Context, subject policy.Subject, itemID, proof string) (*Claim, error) {
	decision := l.engine.Decide(subject, policy.ActionCreate, policy.Resource{
		Kind:    policy.KindClaim,
		OwnerID: subject.ID,
	})
	if err := decision.Err(); err != nil {
		l.record(ctx, subject.ID, audit.EventDecision, "claim.submit", "claim", "deny", map[string]any{"reason": string(decision.Reason)})
		return nil, err
	}

	if itemID == "" {
		return nil, &ValidationError{Field: "item_id", Msg: "required"}
	}
	proof = NormalizeProof(proof)
	if err := ValidateProof(proof); err != nil {
		return nil, err
	}

	claim := &Claim{
		ID:               uuid.New().String(),
		ItemID:           itemID,
		ClaimantID:       subject.ID,
		ProofDescription: proof,
		Status:           StatusPending,
		CreatedAt:        l.now().UTC(),
	}
	if err := l.store.CreateClaim(ctx, claim); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "claim submitted", "claim_id", claim.ID, "item_id", itemID, "claimant_id", subject.ID)
	l.record(ctx, subject.ID, audit.EventMutation, "claim.submit", "claim/"+claim.ID, "created", nil)
	return claim, nil
}

// Get returns a claim the subject is allowed to read.
func (l *Lifecycle) Get(ctx context.Context, subject policy.Subject, id string) (*Claim, error) {
	claim, err := l.store.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	decision := l.engine.Decide(subject, policy.ActionRead, claimResource(claim))
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return claim, nil
}

// List returns claims filtered by status (empty status means all). Listing
// is a staff read: the adjudication queue is not public.
func (l *Lifecycle) List(ctx context.Context, subject policy.Subject, status Status) ([]*Claim, error) {
	decision := l.engine.Decide(subject, policy.ActionRead, policy.Resource{Kind: policy.KindClaim})
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return l.store.ListClaims(ctx, status)
}

// Decide applies a lifecycle event to a claim. Transition validity is
// checked first, then the actor's authority; persistence is a
// compare-and-swap on the status read here, so a concurrent decision
// surfaces as store.ErrConflict and is never silently overwritten.
func (l *Lifecycle) Decide(ctx context.Context, subject policy.Subject, claimID string, event Event, adminNotes string) (*Claim, error) {
	claim, err := l.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	next, ok := Next(claim.Status, event)
	if !ok {
		l.record(ctx, subject.ID, audit.EventDecision, "claim.decide", "claim/"+claim.ID, "invalid_transition", map[string]any{
			"from": string(claim.Status), "event": string(event),
		})
		return nil, ErrInvalidTransition
	}

	decision := l.engine.Decide(subject, policy.ActionDecide, claimResource(claim))
	if err := decision.Err(); err != nil {
		l.record(ctx, subject.ID, audit.EventDecision, "claim.decide", "claim/"+claim.ID, "deny", map[string]any{"reason": string(decision.Reason)})
		return nil, err
	}

	updated, err := l.store.CASUpdateClaim(ctx, claim.ID, claim.Status, Patch{
		Status:     next,
		DecidedBy:  subject.ID,
		DecidedAt:  l.now().UTC(),
		AdminNotes: adminNotes,
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "claim decided",
		"claim_id", claim.ID, "event", string(event), "from", string(claim.Status), "to", string(next), "decided_by", subject.ID)
	l.record(ctx, subject.ID, audit.EventDecision, "claim.decide", "claim/"+claim.ID, "allow", map[string]any{
		"event": string(event), "from": string(claim.Status), "to": string(next),
	})
	return updated, nil
}

func (l *Lifecycle) record(ctx context.Context, actorID string, t audit.EventType, action, resource, outcome string, md map[string]any) {
	if err := l.recorder.Record(ctx, actorID, t, action, resource, outcome, md); err != nil {
		l.logger.ErrorContext(ctx, "audit record failed", "error", err)
	}
}

func claimResource(c *Claim) policy.Resource {
	return policy.Resource{
		Kind:       policy.KindClaim,
		OwnerID:    c.ClaimantID,
		ClaimState: string(c.Status),
	}
}
