// Package pipeline defines the hiring-funnel stages an application moves through
// and which moves between them are allowed.
package pipeline

import (
	"fmt"
	"strings"
)

type Status string

const (
	Lead     Status = "LEAD"
	Applied  Status = "APPLIED"
	Screen   Status = "SCREEN"
	Tech     Status = "TECH"
	Onsite   Status = "ONSITE"
	Offer    Status = "OFFER"
	Hired    Status = "HIRED"
	Rejected Status = "REJECTED"

	// Failed ends a single application attempt. It sits outside the funnel ordering.
	Failed Status = "FAILED"
)

// Ordered lists the funnel stages; HIRED and REJECTED share the last rank.
var Ordered = []Status{Lead, Applied, Screen, Tech, Onsite, Offer, Hired, Rejected}

var rank = map[Status]int{
	Lead:     0,
	Applied:  1,
	Screen:   2,
	Tech:     3,
	Onsite:   4,
	Offer:    5,
	Hired:    6,
	Rejected: 6,
}

// Parse accepts any casing of a known status.
func Parse(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rank[st]; ok || st == Failed {
		return st, nil
	}
	return "", fmt.Errorf("unknown pipeline status %q", s)
}

// CanTransition reports whether an application may move from one stage to another.
// HIRED and REJECTED are reachable from any stage, FAILED included; otherwise
// only same-or-forward moves are allowed. FAILED cannot be entered by a transition.
func CanTransition(from, to Status) bool {
	if to == Hired || to == Rejected {
		return true
	}
	if from == Failed || to == Failed {
		return false
	}
	if _, ok := rank[from]; !ok {
		return false
	}
	toRank, ok := rank[to]
	if !ok {
		return false
	}
	return toRank >= rank[from]
}

// NextStage returns the stage after current. It never proposes HIRED or REJECTED;
// those need an explicit decision.
func NextStage(current Status) (Status, bool) {
	r, ok := rank[current]
	if !ok {
		return "", false
	}
	next := r + 1
	if next >= len(Ordered) {
		return "", false
	}
	candidate := Ordered[next]
	if candidate == Hired || candidate == Rejected {
		return "", false
	}
	return candidate, true
}

// IsTerminal reports whether no further automatic movement can happen.
func IsTerminal(s Status) bool {
	return s == Hired || s == Rejected || s == Failed
}
