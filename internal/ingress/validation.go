package ingress

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// ValidationError carries a structured list of field-level problems,
// rendered by the HTTP layer as a 400 JSON body with a details array.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d issue(s)", len(e.Details))
}

func newValidationError(details ...string) *ValidationError {
	return &ValidationError{Details: details}
}

var sanitizer = bluemonday.StrictPolicy()

// validateMessageRequest checks req against §4.6's validation rules and
// sanitises content in place, stripping any script/markup content.
// maxContentLength is the configured ceiling on the content field
// (cfg.MaxMessageLength), not a package constant.
func validateMessageRequest(req *messageRequest, maxContentLength int) error {
	var details []string

	if req.Content == "" {
		details = append(details, "content must be a non-empty string")
	} else if utf8.RuneCountInString(req.Content) > maxContentLength {
		details = append(details, fmt.Sprintf("content exceeds maximum length of %d characters", maxContentLength))
	}

	if req.ID != "" {
		if u, err := uuid.Parse(req.ID); err != nil || u.Version() != 4 {
			details = append(details, "id must be a valid UUID v4")
		}
	}

	if req.EnergyBudget != nil && *req.EnergyBudget < 0 {
		details = append(details, "energyBudget must be >= 0")
	}

	if len(details) > 0 {
		return newValidationError(details...)
	}

	req.Content = sanitizer.Sanitize(req.Content)
	return nil
}

// validateConversationFilter checks the optional query filters on
// GET /conversations.
func validateConversationFilter(state, budgetStatus string) error {
	var details []string
	switch state {
	case "", "pending", "open", "ended", "snoozed":
	default:
		details = append(details, "state must be one of: pending, open, ended, snoozed")
	}
	switch budgetStatus {
	case "", "null", "within", "exceeded", "depleted":
	default:
		details = append(details, "budgetStatus must be one of: null, within, exceeded, depleted")
	}
	if len(details) > 0 {
		return newValidationError(details...)
	}
	return nil
}
