package orders

import "fmt"

// Status is serialized as a small integer. Exactly three values are stable on
// the wire; cancelled orders are deleted rather than kept as a fourth status,
// which historical reporting relies on.
type Status int

const (
	StatusPending   Status = 0
	StatusApproved  Status = 1
	StatusDelivered Status = 2
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusApproved:  "approved",
	StatusDelivered: "delivered",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus maps the lowercase route segment used by the admin listings.
func ParseStatus(name string) (Status, bool) {
	for s, n := range statusNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusApproved: true},
	StatusApproved:  {StatusDelivered: true},
	StatusDelivered: {},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Cancellation is not part of this map: it deletes a pending order instead of
// moving it to a status.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
