package gateway

import (
	"context"
	"math"
	"time"

	"github.com/ivycove/cortex/internal/logging"
)

const maxRetries = 3

// urgentSystemSuffix is appended when a call is marked urgent, giving the
// model a pressing-tone variant of its instructions.
const urgentSystemSuffix = "\n\nThis is urgent. Respond tersely and decisively; do not deliberate at length."

const (
	defaultMaxTokens = 1024
	urgentMaxTokens  = 256
)

// Gateway selects a tier by current energy, invokes the matching backend,
// and reports a signed net energy cost back to the caller.
type Gateway struct {
	Tiers    []Tier
	Backends map[string]Backend // tier name -> backend
	Fallback string             // content returned when every retry is exhausted
}

// New constructs a Gateway from a tier table and a backend per tier name.
func New(tiers []Tier, backends map[string]Backend) *Gateway {
	return &Gateway{
		Tiers:    tiers,
		Backends: backends,
		Fallback: "I'm temporarily unable to reach the model provider. I'll try again shortly.",
	}
}

// Chat selects a tier from e, invokes the backend with retry/backoff, and
// returns the response with ModelTier and EnergyConsumed populated. It
// never returns an error: on transport exhaustion it substitutes the
// fallback content and a full nominal energy charge, per spec.
func (g *Gateway) Chat(ctx context.Context, req ChatRequest, e float64) *ChatResponse {
	tier := SelectTier(g.Tiers, e)
	backend := g.Backends[tier.Name]

	if req.Urgent {
		req.SystemPrompt += urgentSystemSuffix
		req.MaxTokens = urgentMaxTokens
	} else if req.MaxTokens == 0 {
		req.MaxTokens = defaultMaxTokens
	}

	if backend == nil {
		logging.Logger().Warn("no backend registered for tier", "tier", tier.Name)
		return g.fallbackResponse(tier)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := backend.Chat(ctx, req, tier.ModelID)
		if err == nil {
			dt := time.Since(start).Seconds()
			resp.ModelTier = tier.Name
			resp.EnergyConsumed = tier.NominalCost - dt
			return resp
		}
		lastErr = err
		logging.Logger().Warn("model gateway call failed, retrying", "tier", tier.Name, "attempt", attempt, "error", err)
		if attempt == maxRetries-1 {
			break
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return g.fallbackResponse(tier)
		}
	}

	logging.Logger().Error("model gateway exhausted retries", "tier", tier.Name, "error", lastErr)
	return g.fallbackResponse(tier)
}

func (g *Gateway) fallbackResponse(tier Tier) *ChatResponse {
	return &ChatResponse{
		Content:        g.Fallback,
		ModelTier:      tier.Name,
		EnergyConsumed: tier.NominalCost,
	}
}
