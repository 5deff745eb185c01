package loop

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/energy"
	"github.com/ivycove/cortex/internal/gateway"
)

const baseSystemPrompt = `You are an autonomous cognitive process. You read conversations assigned ` +
	`to you, decide how to respond, and act only through the tools you are given. You never address ` +
	`a user directly outside of the respond/respond_with_approval tools. Be concise.`

const inboxRulesAddendum = `

You are looking at a single conversation that needs your attention. Use respond to answer it ` +
	`directly, respond_with_approval if the action needs explicit user sign-off first, or ` +
	`end_conversation/snooze_conversation if it should leave your attention without a reply.`

// composePrompt builds the gateway request for one iteration, following
// the same skeleton regardless of which action branch selected it.
func composePrompt(
	scope []convstore.Conversation,
	target *convstore.Conversation,
	focused bool,
	th reviewBuffers,
	reg *energy.Regulator,
	instruction string,
) gateway.ChatRequest {
	system := baseSystemPrompt
	if target != nil {
		system += inboxRulesAddendum
	}

	var messages []gateway.ChatMessage
	for _, c := range scope {
		messages = append(messages, gateway.ChatMessage{
			Role: gateway.RoleUser,
			Content: fmt.Sprintf("Conversation %s: %s [Cost: %.1f units, %d responses]",
				c.RequestID, c.InputMessage, c.TotalEnergyConsumed, len(c.Responses)),
		})
		if len(c.Responses) > 0 {
			messages = append(messages, gateway.ChatMessage{
				Role:    gateway.RoleAssistant,
				Content: concatenateResponses(c.Responses),
			})
		}
	}

	if th.review != "" {
		messages = append(messages, gateway.ChatMessage{Role: gateway.RoleAssistant, Content: th.review})
	}
	if focused && th.focused != "" {
		messages = append(messages, gateway.ChatMessage{Role: gateway.RoleAssistant, Content: th.focused})
	}

	messages = append(messages, gateway.ChatMessage{Role: gateway.RoleUser, Content: ephemeralStatusBlock(reg, target)})
	messages = append(messages, gateway.ChatMessage{Role: gateway.RoleUser, Content: instruction})

	return gateway.ChatRequest{
		SystemPrompt: system,
		Messages:     messages,
		Urgent:       reg.Status() == energy.StatusUrgent,
	}
}

// reviewBuffers is the already-concatenated view of the two thought
// buffers, passed in so prompt.go has no direct dependency on the
// thoughts package's ring internals.
type reviewBuffers struct {
	review  string
	focused string
}

func concatenateResponses(responses []convstore.Response) string {
	parts := make([]string, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n")
}

func ephemeralStatusBlock(reg *energy.Regulator, target *convstore.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Energy: %d%% (%s)\n", reg.Percentage(), reg.Status())

	if target != nil {
		fmt.Fprintf(&b, "Target conversation: %s, total energy consumed so far: %.1f\n", target.RequestID, target.TotalEnergyConsumed)
		b.WriteString(budgetSentence(target))
	}
	return b.String()
}

func budgetSentence(c *convstore.Conversation) string {
	switch c.BudgetStatus() {
	case convstore.BudgetDepleted:
		return "This conversation has a zero energy budget: treat it as critical, answer minimally and close it out."
	case convstore.BudgetExceeded:
		return "This conversation has exceeded its energy budget; wrap up as efficiently as possible."
	case convstore.BudgetWithin:
		if c.EnergyBudget != nil && *c.EnergyBudget > 0 {
			remainingFraction := (*c.EnergyBudget - c.TotalEnergyConsumed) / *c.EnergyBudget
			if remainingFraction < 0.2 {
				return "This conversation has less than 20% of its energy budget remaining."
			}
		}
		return "This conversation's energy budget is nominal."
	default:
		return ""
	}
}

// reviewWindowSize computes k = round(1 + 19*E%/100), so 1 at 0% energy
// and 20 at 100%.
func reviewWindowSize(percentage int) int {
	k := 1.0 + 19.0*float64(percentage)/100.0
	return int(k + 0.5)
}
