// ABOUTME: Onboarding status lattice with forward-only ordering
// ABOUTME: Provides rank comparison and MaxStatus used by the state machine

package onboarding

// Status is a stage of the onboarding lattice.
type Status string

const (
	StatusNotStarted     Status = "NotStarted"
	StatusSpecsDrafting  Status = "SpecsDrafting"
	StatusSpecsConfirmed Status = "SpecsConfirmed"
	StatusStackSelected  Status = "StackSelected"
	StatusLocked         Status = "Locked"
)

// Statuses lists every stage in lattice order.
var Statuses = []Status{
	StatusNotStarted,
	StatusSpecsDrafting,
	StatusSpecsConfirmed,
	StatusStackSelected,
	StatusLocked,
}

// Rank returns the position of s in the lattice, or -1 for an unknown value.
func (s Status) Rank() int {
	switch s {
	case StatusNotStarted:
		return 0
	case StatusSpecsDrafting:
		return 1
	case StatusSpecsConfirmed:
		return 2
	case StatusStackSelected:
		return 3
	case StatusLocked:
		return 4
	default:
		return -1
	}
}

// Valid reports whether s is one of the five lattice values.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// MaxStatus returns whichever of a and b is further along the lattice.
func MaxStatus(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
