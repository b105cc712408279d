package domain

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusApproved   PayoutStatus = "approved"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// ActivePayoutStatuses are the statuses that block a new request for the same subject.
var ActivePayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusApproved,
	PayoutStatusProcessing,
}

func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusApproved, PayoutStatusProcessing,
		PayoutStatusCompleted, PayoutStatusFailed:
		return true
	default:
		return false
	}
}

func (s PayoutStatus) IsActive() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusApproved, PayoutStatusProcessing:
		return true
	default:
		return false
	}
}

func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed
}

func (s PayoutStatus) rank() int {
	switch s {
	case PayoutStatusPending:
		return 0
	case PayoutStatusApproved:
		return 1
	case PayoutStatusProcessing:
		return 2
	case PayoutStatusCompleted, PayoutStatusFailed:
		return 3
	default:
		return -1
	}
}

type TransitionOutcome int

const (
	// TransitionApply means the move is a forward step and must be persisted.
	TransitionApply TransitionOutcome = iota
	// TransitionNoop means the payout already is at or past the target status.
	TransitionNoop
	// TransitionInvalid means the move skips a step the lifecycle requires.
	TransitionInvalid
)

func (o TransitionOutcome) String() string {
	switch o {
	case TransitionApply:
		return "apply"
	case TransitionNoop:
		return "noop"
	default:
		return "invalid"
	}
}

var forwardTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusApproved, PayoutStatusFailed},
	PayoutStatusApproved:   {PayoutStatusProcessing, PayoutStatusFailed},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

// Transition is the only place the payout lifecycle is decided. Terminal
// statuses absorb every later event, so duplicate or out-of-order deliveries
// never regress a payout.
func Transition(from, to PayoutStatus) TransitionOutcome {
	if !from.IsValid() || !to.IsValid() {
		return TransitionInvalid
	}
	if from == to || from.IsTerminal() {
		return TransitionNoop
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return TransitionApply
		}
	}
	if to.rank() < from.rank() {
		return TransitionNoop
	}
	return TransitionInvalid
}
