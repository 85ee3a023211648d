package policy

// Engine evaluates the ordered rule table. It holds no mutable state and is
// safe for concurrent use; the optional overlay is compiled once up front.
type Engine struct {
	overlay *Overlay
}

// NewEngine creates an engine with the built-in rule table only.
func NewEngine() *Engine {
	return &Engine{}
}

// NewEngineWithOverlay creates an engine whose built-in Allow outcomes are
// additionally filtered through operator-defined deny rules. The overlay can
// only narrow the built-in decision, never widen it.
func NewEngineWithOverlay(o *Overlay) *Engine {
	return &Engine{overlay: o}
}

// Decide maps (subject, action, resource) to exactly one outcome. It is a
// total function: unrecognized roles, actions or kinds deny with
// UnknownPolicy rather than erroring or silently allowing.
func (e *Engine) Decide(s Subject, a Action, r Resource) Decision {
	d := e.decideBase(s, a, r)
	if !d.Allowed || e.overlay == nil {
		return d
	}
	name, matched, err := e.overlay.Match(s, a, r)
	if err != nil {
		// An overlay that cannot be evaluated must not widen access.
		return Deny(ReasonPolicyOverlay)
	}
	if matched {
		_ = name
		return Deny(ReasonPolicyOverlay)
	}
	return d
}

// decideBase is the built-in ordered rule table; first match wins.
func (e *Engine) decideBase(s Subject, a Action, r Resource) Decision {
	if !s.Role.Known() || !a.Known() || !r.Kind.Known() {
		return Deny(ReasonUnknownPolicy)
	}

	// No impersonation: nobody, admins included, creates a record owned by
	// another identity.
	if a == ActionCreate && r.OwnerID != "" && r.OwnerID != s.ID {
		return Deny(ReasonImpersonation)
	}

	// Rule 1: admins may perform every remaining action.
	if s.Role == RoleAdmin {
		return Allow()
	}

	// Rule 2: non-sensitive records are readable by any authenticated
	// subject; guests are told to log in. Claims are readable by their
	// claimant and by security staff.
	if a == ActionRead {
		if s.Role == RoleGuest {
			return Deny(ReasonUnauthenticated)
		}
		switch r.Kind {
		case KindProfile, KindForumPost, KindForumComment:
			return Allow()
		case KindClaim:
			if s.Role == RoleSecurity || (s.ID != "" && s.ID == r.OwnerID) {
				return Allow()
			}
		}
	}

	// Rule 3: forum content is deletable by its owner.
	if a == ActionDelete && (r.Kind == KindForumPost || r.Kind == KindForumComment) {
		if s.ID != "" && s.ID == r.OwnerID {
			return Allow()
		}
	}

	// Rule 4: adjudication is reserved for staff, even when the subject is
	// the claimant or the item owner. Self-adjudication is the primary
	// integrity property this table protects.
	if a == ActionDecide && r.Kind == KindClaim {
		if s.Role.Staff() {
			return Allow()
		}
		return Deny(ReasonInsufficientRole)
	}

	// Rule 5: any authenticated subject may submit a claim or author forum
	// content; guests may not.
	if a == ActionCreate && (r.Kind == KindClaim || r.Kind == KindForumPost || r.Kind == KindForumComment) {
		if s.Role == RoleGuest {
			return Deny(ReasonUnauthenticated)
		}
		return Allow()
	}

	// Rule 6: everything else denies.
	return Deny(ReasonNotOwnerOrRole)
}
