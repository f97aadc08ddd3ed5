// Package route defines the handling paths a coalesced query can take.
package route

import "strings"

// Route is a categorical decision about what kind of context a query needs.
type Route string

// Known routes. ContinueConversation and More are meta-routes: they are
// always resolved into a concrete route before a turn is persisted.
const (
	Reset                Route = "RESET"
	InsuranceService     Route = "INSURANCE_SERVICE"
	InsuranceProduct     Route = "INSURANCE_PRODUCT"
	ContinueConversation Route = "CONTINUE_CONVERSATION"
	More                 Route = "MORE"
	OffTopic             Route = "OFF_TOPIC"
)

// None is the zero Route, used when no prior turn exists.
const None Route = ""

var known = map[Route]struct{}{
	Reset:                {},
	InsuranceService:     {},
	InsuranceProduct:     {},
	ContinueConversation: {},
	More:                 {},
	OffTopic:             {},
}

// Parse normalizes a raw classifier label. Case, surrounding whitespace and
// quotes are ignored, and spaces or hyphens are accepted in place of
// underscores ("CONTINUE CONVERSATION", "off-topic"). The second return
// value is false when the label is not one of the known routes.
func Parse(label string) (Route, bool) {
	s := strings.TrimSpace(label)
	s = strings.Trim(s, "\"'`.")
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	r := Route(s)
	if _, ok := known[r]; !ok {
		return None, false
	}
	return r, true
}

// Classification maps a raw classifier label to one of the five routes the
// orchestrator classifies into. Unknown labels and RESET (which is handled
// as a sentinel before classification) fall back to OffTopic.
func Classification(label string) Route {
	r, ok := Parse(label)
	if !ok || r == Reset {
		return OffTopic
	}
	return r
}

// IsMeta reports whether r must be resolved before persistence.
func (r Route) IsMeta() bool {
	return r == ContinueConversation || r == More
}

// Persistable reports whether r may be stored on a conversation turn.
func (r Route) Persistable() bool {
	switch r {
	case InsuranceService, InsuranceProduct, OffTopic:
		return true
	default:
		return false
	}
}

func (r Route) String() string { return string(r) }
