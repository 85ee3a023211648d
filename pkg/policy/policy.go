// Package policy implements the authorization decision engine: a pure,
// deterministic mapping from (subject, action, resource) to Allow or Deny.
//
// Roles, actions and resource kinds are closed enumerations so the rule table
// is exhaustively checkable; anything outside the table denies (fail closed).
package policy

// Role is the closed set of subject roles.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleSecurity Role = "security"
)

// Known reports whether the role is a member of the closed enumeration.
// Unknown roles must never be granted anything.
func (r Role) Known() bool {
	switch r {
	case RoleGuest, RoleUser, RoleAdmin, RoleSecurity:
		return true
	}
	return false
}

// Staff reports whether the role may adjudicate claims.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleSecurity
}

// Action is the closed set of operations the engine decides on.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionDecide Action = "decide"
)

// Known reports whether the action is a member of the closed enumeration.
func (a Action) Known() bool {
	switch a {
	case ActionRead, ActionCreate, ActionDelete, ActionDecide:
		return true
	}
	return false
}

// ResourceKind is the closed set of record kinds decisions apply to.
type ResourceKind string

const (
	KindClaim        ResourceKind = "claim"
	KindForumPost    ResourceKind = "forum_post"
	KindForumComment ResourceKind = "forum_comment"
	KindProfile      ResourceKind = "profile"
)

// Known reports whether the kind is a member of the closed enumeration.
func (k ResourceKind) Known() bool {
	switch k {
	case KindClaim, KindForumPost, KindForumComment, KindProfile:
		return true
	}
	return false
}

// Subject is the actor issuing a request. Anonymous callers carry RoleGuest
// and an empty ID.
type Subject struct {
	ID   string
	Role Role
}

// Anonymous is the subject used for requests with no session.
var Anonymous = Subject{Role: RoleGuest}

// Resource describes the record a decision applies to. Ownership is a
// relation resolved by id comparison, never a back-pointer on Subject.
type Resource struct {
	Kind    ResourceKind
	OwnerID string
	// ClaimState is set for KindClaim only.
	ClaimState string
}

// ReasonCode explains a Deny outcome to the caller.
type ReasonCode string

const (
	ReasonUnknownPolicy    ReasonCode = "UnknownPolicy"
	ReasonInsufficientRole ReasonCode = "InsufficientRole"
	ReasonUnauthenticated  ReasonCode = "Unauthenticated"
	ReasonNotOwnerOrRole   ReasonCode = "NotOwnerOrRole"
	ReasonImpersonation    ReasonCode = "Impersonation"
	ReasonPolicyOverlay    ReasonCode = "PolicyOverlay"
)

// Decision is the outcome of a single policy evaluation.
type Decision struct {
	Allowed bool
	Reason  ReasonCode
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with the given reason.
func Deny(reason ReasonCode) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// DeniedError carries a Deny decision across an error return so callers at
// the HTTP boundary can map the reason deterministically.
type DeniedError struct {
	Reason ReasonCode
}

func (e *DeniedError) Error() string {
	return "policy denied: " + string(e.Reason)
}

// Err converts a Deny decision into a *DeniedError; nil for Allow.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}
