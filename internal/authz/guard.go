// Package authz decides what an identity may do with a listing.
package authz

// Action is an operation a caller attempts on a listing.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionMessage Action = "message"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Allow lets the operation proceed.
	Allow Decision = iota
	// DenyUnauthenticated sends the caller to the login flow.
	DenyUnauthenticated
	// DenyNotFound hides the resource: the caller does not own it.
	DenyNotFound
	// DenySelfMessage rejects a seller messaging their own listing.
	DenySelfMessage
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyNotFound:
		return "deny_not_found"
	case DenySelfMessage:
		return "deny_self_message"
	default:
		return "unknown"
	}
}

// Identity is the caller. The zero value is anonymous.
type Identity struct {
	UserID uint
}

// Authenticated reports whether the caller carries a verified user ID.
func (i Identity) Authenticated() bool {
	return i.UserID != 0
}

// Resource is the listing an action targets. Nil for actions that have none, such as create.
type Resource struct {
	SellerID uint
}

// Guard evaluates the marketplace access rules.
type Guard struct{}

// NewGuard returns a Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Authorize decides whether who may perform action on res.
func (g *Guard) Authorize(who Identity, action Action, res *Resource) Decision {
	switch action {
	case ActionView:
		return Allow
	case ActionCreate:
		if !who.Authenticated() {
			return DenyUnauthenticated
		}
		return Allow
	case ActionEdit, ActionDelete:
		if !who.Authenticated() {
			return DenyUnauthenticated
		}
		if res == nil || res.SellerID != who.UserID {
			return DenyNotFound
		}
		return Allow
	case ActionMessage:
		if !who.Authenticated() {
			return DenyUnauthenticated
		}
		if res == nil {
			return DenyNotFound
		}
		if res.SellerID == who.UserID {
			return DenySelfMessage
		}
		return Allow
	default:
		return DenyNotFound
	}
}
