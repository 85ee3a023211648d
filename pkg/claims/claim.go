// Package claims drives a claim through its adjudication lifecycle:
// submitted pending, decided by staff, never deleted.
package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Status is the closed set of claim states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Event is a requested lifecycle transition.
type Event string

const (
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventComplete Event = "complete"
)

// transitions is the full state machine. Status only moves forward; the
// pending->rejected shortcut is the single permitted skip.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventApprove: StatusApproved,
		EventReject:  StatusRejected,
	},
	StatusApproved: {
		EventComplete: StatusCompleted,
		EventReject:   StatusRejected,
	},
}

// Next returns the target state for (from, event), or false when the
// transition is not in the table.
func Next(from Status, event Event) (Status, bool) {
	to, ok := transitions[from][event]
	return to, ok
}

// MinProofRunes is the minimum length of a proof description, counted in
// runes after NFC normalization.
const MinProofRunes = 10

// Claim is a recorded assertion that a found item belongs to the claimant.
// ClaimantID is immutable after creation; DecidedBy/DecidedAt are set iff
// the claim has left pending.
type Claim struct {
	ID               string     `json:"id"`
	ItemID           string     `json:"item_id"`
	ClaimantID       string     `json:"claimant_id"`
	ProofDescription string     `json:"proof_description"`
	Status           Status     `json:"status"`
	AdminNotes       string     `json:"admin_notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	DecidedBy        string     `json:"decided_by,omitempty"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
}

// ValidationError reports malformed input the caller must correct.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// ErrInvalidTransition is returned when the state machine rejects an event.
// Not retryable; the claim is unchanged.
var ErrInvalidTransition = errors.New("invalid claim transition")

// NormalizeProof returns the NFC-normalized, trimmed proof description.
func NormalizeProof(proof string) string {
	return norm.NFC.String(strings.TrimSpace(proof))
}

// ValidateProof checks the normalized proof meets the minimum length.
func ValidateProof(proof string) error {
	if utf8.RuneCountInString(proof) < MinProofRunes {
		return &ValidationError{
			Field: "proof_description",
			Msg:   fmt.Sprintf("must be at least %d characters", MinProofRunes),
		}
	}
	return nil
}

// Patch is the update a successful transition applies, persisted with a
// compare-and-swap keyed on the expected current status.
type Patch struct {
	Status    Status
	DecidedBy string
	DecidedAt time.Time
	// AdminNotes replaces stored notes when non-empty.
	AdminNotes string
}

// Store is the persistence contract the lifecycle requires. Implementations
// must make CASUpdateClaim atomic: when the stored status no longer matches
// expected, they return store.ErrConflict and change nothing.
type Store interface {
	CreateClaim(ctx context.Context, c *Claim) error
	GetClaim(ctx context.Context, id string) (*Claim, error)
	CASUpdateClaim(ctx context.Context, id string, expected Status, patch Patch) (*Claim, error)
	ListClaims(ctx context.Context, status Status) ([]*Claim, error)
}
