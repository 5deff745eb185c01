// Package convstore implements the durable conversation store: the single
// writer of all persistent state, backed by an embedded sqlite file.
package convstore

import "time"

// BudgetStatus is the derived state of a conversation's soft energy budget.
type BudgetStatus string

const (
	BudgetNull     BudgetStatus = "null"
	BudgetDepleted BudgetStatus = "depleted"
	BudgetExceeded BudgetStatus = "exceeded"
	BudgetWithin   BudgetStatus = "within"
)

// ApprovalState is the lifecycle status of an approval row.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Response is a single model reply attached to a conversation.
type Response struct {
	ID          int64
	Timestamp   time.Time
	Content     string
	EnergyLevel float64
	ModelUsed   string
}

// Approval is a response-like record awaiting explicit user approve/reject.
type Approval struct {
	ID                int64
	Timestamp         time.Time
	Content           string
	EnergyLevel       float64
	ModelUsed         string
	Status            ApprovalState
	Feedback          string
	ApprovalTimestamp time.Time
}

// Conversation is the full durable record for one request id.
type Conversation struct {
	RequestID           string
	InputMessage        string
	CreatedAt           time.Time
	TotalEnergyConsumed float64
	SleepCycles         int
	Ended               bool
	EndedReason         string
	SnoozeUntil         time.Time
	SnoozeDuration      int
	EnergyBudget        *float64
	Responses           []Response
	Approvals           []Approval
}

// BudgetStatus computes the derived budget state for this conversation.
func (c *Conversation) BudgetStatus() BudgetStatus {
	if c.EnergyBudget == nil {
		return BudgetNull
	}
	b := *c.EnergyBudget
	switch {
	case b == 0:
		return BudgetDepleted
	case c.TotalEnergyConsumed >= b:
		return BudgetExceeded
	default:
		return BudgetWithin
	}
}

// Snoozed reports whether the conversation is currently hidden by snooze.
func (c *Conversation) Snoozed(now time.Time) bool {
	return !c.SnoozeUntil.IsZero() && c.SnoozeUntil.After(now)
}

// Stats is the aggregate view returned by Store.Stats.
type Stats struct {
	TotalConversations int
	TotalEnergyConsumed float64
	AverageEnergyLevel  float64
	UrgentResponseCount int
}
