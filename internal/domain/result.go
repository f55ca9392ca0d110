package domain

// ReconcileState is a terminal or intermediate state of a checkout return.
type ReconcileState string

const (
	StateArrived              ReconcileState = "arrived"
	StateResolving            ReconcileState = "resolving"
	StateReconciled           ReconcileState = "reconciled"
	StateReconciliationFailed ReconcileState = "reconciliation_failed"
	StateCancelling           ReconcileState = "cancelling"
	StateCancelled            ReconcileState = "cancelled"
	StateCancellationFailed   ReconcileState = "cancellation_failed"
)

// Terminal reports whether no further transition happens from this state.
func (s ReconcileState) Terminal() bool {
	switch s {
	case StateReconciled, StateReconciliationFailed, StateCancelled, StateCancellationFailed:
		return true
	}
	return false
}

// Notice levels.
const (
	NoticeSuccess = "success"
	NoticeInfo    = "info"
	NoticeError   = "error"
)

// Notice is the user-visible message for a finished step (the toast).
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ReconcileResult is what a checkout return page renders.
type ReconcileResult struct {
	State          ReconcileState `json:"state"`
	Notice         Notice         `json:"notice"`
	CampID         string         `json:"camp_id,omitempty"`
	Email          string         `json:"email,omitempty"`
	TransactionID  string         `json:"transaction_id,omitempty"`
	DeletedCount   int64          `json:"deleted_count"`
	AlreadyRemoved bool           `json:"already_removed,omitempty"`
}

// RegistrationOutcome is returned after a successful registration submit.
type RegistrationOutcome struct {
	Registration     RegistrationRecord `json:"registration"`
	PaymentRequired  bool               `json:"payment_required"`
	IncrementQueued  bool               `json:"increment_queued"`
	IncrementWarning string             `json:"increment_warning,omitempty"`
	Next             string             `json:"next"`
}

// DashboardView groups the registrations a user may see.
type DashboardView struct {
	Email     string               `json:"email"`
	Role      string               `json:"role"`
	Paid      []RegistrationRecord `json:"paid"`
	Unpaid    []RegistrationRecord `json:"unpaid"`
	PaidCount int                  `json:"paid_count"`
	Total     int                  `json:"total"`
}
