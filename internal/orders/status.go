package orders

import "errors"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusDone     Status = "done"
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrStatusConflict    = errors.New("order status changed concurrently")
	ErrUnknownStatus     = errors.New("unknown order status")
)

var validNext = map[Status]map[Status]bool{
	StatusPending:  {StatusAccepted: true, StatusRejected: true},
	StatusAccepted: {StatusDone: true},
	StatusRejected: {},
	StatusDone:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// ParseStatus maps a stored value to a Status. An empty value is treated as
// pending, matching documents written before the field existed.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusPending, nil
	}
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", ErrUnknownStatus
	}
	return st, nil
}

// Active reports whether the order still needs admin attention.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}
