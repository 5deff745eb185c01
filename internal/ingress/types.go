package ingress

import "time"

// messageRequest is the POST /message body.
type messageRequest struct {
	Content          string                    `json:"content"`
	ID               string                    `json:"id,omitempty"`
	EnergyBudget     *float64                  `json:"energyBudget,omitempty"`
	ApprovalResponse *approvalResponsePayload `json:"approvalResponse,omitempty"`
}

// approvalResponsePayload mutates the latest pending approval for an
// existing conversation instead of creating a new one.
type approvalResponsePayload struct {
	Approved    bool     `json:"approved"`
	Feedback    string   `json:"feedback,omitempty"`
	BudgetDelta *float64 `json:"budgetDelta,omitempty"`
}

// approveRejectRequest is the body for POST /conversations/:id/approve|reject.
type approveRejectRequest struct {
	Feedback    string   `json:"feedback,omitempty"`
	BudgetDelta *float64 `json:"budgetDelta,omitempty"`
}

type messageAccepted struct {
	Status    string    `json:"status"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type healthBody struct {
	Status string `json:"status"`
}

type energyBody struct {
	Level      float64 `json:"level"`
	Percentage int     `json:"percentage"`
	Status     string  `json:"status"`
}

type adminActionResult struct {
	Dispatched bool   `json:"dispatched"`
	Detail     string `json:"detail,omitempty"`
}
