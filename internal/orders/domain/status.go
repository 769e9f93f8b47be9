package orders

// Status is the lifecycle state of a sub-order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusEscrow     Status = "escrow"
	StatusInstalling Status = "installing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusEscrow, StatusCancelled},
	StatusEscrow:     {StatusInstalling},
	StatusInstalling: {StatusCompleted},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition exists.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus validates a stored status.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPending, StatusPaid, StatusEscrow, StatusInstalling, StatusCompleted, StatusCancelled:
		return Status(value), true
	default:
		return "", false
	}
}

// AggregateStatus is the derived status of a parent order.
type AggregateStatus string

const (
	AggregatePending            AggregateStatus = "pending"
	AggregatePartiallyPaid      AggregateStatus = "partially_paid"
	AggregateInProgress         AggregateStatus = "in_progress"
	AggregateCompleted          AggregateStatus = "completed"
	AggregatePartiallyCompleted AggregateStatus = "partially_completed"
	AggregateCancelled          AggregateStatus = "cancelled"
)

// DeriveStatus rolls sub-order statuses up into a parent status.
func DeriveStatus(statuses []Status) AggregateStatus {
	if len(statuses) == 0 {
		return AggregatePending
	}
	var pending, cancelled, completed int
	for _, s := range statuses {
		switch s {
		case StatusPending:
			pending++
		case StatusCancelled:
			cancelled++
		case StatusCompleted:
			completed++
		}
	}
	live := len(statuses) - cancelled
	switch {
	case cancelled == len(statuses):
		return AggregateCancelled
	case completed == live && cancelled == 0:
		return AggregateCompleted
	case completed == live:
		return AggregatePartiallyCompleted
	case pending == live:
		return AggregatePending
	case pending > 0:
		return AggregatePartiallyPaid
	default:
		return AggregateInProgress
	}
}
