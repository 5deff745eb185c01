package ingress

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ivycove/cortex/internal/approval"
	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/loop"
)

func respondValidationError(c *gin.Context, err *ValidationError) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "validation failed", Details: err.Details})
}

func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, newValidationError("request body must be valid JSON matching {content, id?, energyBudget?, approvalResponse?}"))
		return
	}

	if req.ApprovalResponse != nil {
		s.handleApprovalResponse(c, req)
		return
	}

	if err := validateMessageRequest(&req, s.maxMessageLength); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			respondValidationError(c, ve)
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	if err := s.loop.Enqueue(c.Request.Context(), loop.IncomingMessage{
		RequestID: id,
		Content:   req.Content,
		Budget:    req.EnergyBudget,
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "could not enqueue request"})
		return
	}

	c.JSON(http.StatusOK, messageAccepted{Status: "received", RequestID: id, Timestamp: time.Now()})
}

func (s *Server) handleApprovalResponse(c *gin.Context, req messageRequest) {
	if req.ID == "" {
		respondValidationError(c, newValidationError("id is required when approvalResponse is present"))
		return
	}
	if u, err := uuid.Parse(req.ID); err != nil || u.Version() != 4 {
		respondValidationError(c, newValidationError("id must be a valid UUID v4"))
		return
	}
	if _, err := s.store.Get(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, convstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody{Error: "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	decision := approval.Decision{
		Approved:    req.ApprovalResponse.Approved,
		Feedback:    req.ApprovalResponse.Feedback,
		BudgetDelta: req.ApprovalResponse.BudgetDelta,
	}
	if err := s.loop.Enqueue(c.Request.Context(), loop.IncomingMessage{RequestID: req.ID, Approval: &decision}); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "could not enqueue approval response"})
		return
	}
	c.JSON(http.StatusOK, messageAccepted{Status: "received", RequestID: req.ID, Timestamp: time.Now()})
}

func (s *Server) listConversations(c *gin.Context) {
	state := c.Query("state")
	budgetStatus := c.Query("budgetStatus")
	if err := validateConversationFilter(state, budgetStatus); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			respondValidationError(c, ve)
			return
		}
	}

	limit := 0
	if l := c.Query("limit"); l != "" {
		if n, err := parsePositiveInt(l); err == nil {
			limit = n
		} else {
			respondValidationError(c, newValidationError("limit must be a positive integer"))
			return
		}
	}

	all, err := s.store.List(c.Request.Context(), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	now := time.Now()
	filtered := make([]convstore.Conversation, 0, len(all))
	for _, conv := range all {
		if state != "" && !matchesState(conv, state, now) {
			continue
		}
		if budgetStatus != "" && string(conv.BudgetStatus()) != budgetStatus {
			continue
		}
		filtered = append(filtered, conv)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}

	c.JSON(http.StatusOK, filtered)
}

func matchesState(c convstore.Conversation, state string, now time.Time) bool {
	switch state {
	case "ended":
		return c.Ended
	case "snoozed":
		return c.Snoozed(now)
	case "pending":
		return !c.Ended && !c.Snoozed(now) && len(c.Responses) == 0
	case "open":
		return !c.Ended && !c.Snoozed(now)
	default:
		return true
	}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

func (s *Server) getConversation(c *gin.Context) {
	conv, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, convstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody{Error: "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) getApprovals(c *gin.Context) {
	conv, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, convstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody{Error: "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, conv.Approvals)
}

func (s *Server) approveConversation(c *gin.Context) { s.resolveApproval(c, true) }
func (s *Server) rejectConversation(c *gin.Context)  { s.resolveApproval(c, false) }

func (s *Server) resolveApproval(c *gin.Context, approved bool) {
	id := c.Param("id")
	var body approveRejectRequest
	_ = c.ShouldBindJSON(&body) // body is optional

	if _, err := s.store.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, convstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody{Error: "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	decision := approval.Decision{Approved: approved, Feedback: body.Feedback, BudgetDelta: body.BudgetDelta}
	if err := approval.Apply(c.Request.Context(), s.store, id, decision); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "could not apply approval decision"})
		return
	}
	c.JSON(http.StatusOK, messageAccepted{Status: "received", RequestID: id, Timestamp: time.Now()})
}

func (s *Server) health(c *gin.Context) { c.JSON(http.StatusOK, healthBody{Status: "ok"}) }
func (s *Server) ready(c *gin.Context)  { c.JSON(http.StatusOK, healthBody{Status: "ready"}) }
func (s *Server) live(c *gin.Context)   { c.JSON(http.StatusOK, healthBody{Status: "alive"}) }

func (s *Server) getEnergy(c *gin.Context) {
	c.JSON(http.StatusOK, energyBody{
		Level:      s.energy.Current(),
		Percentage: s.energy.Percentage(),
		Status:     string(s.energy.Status()),
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) adminTriggerReflection(c *gin.Context) {
	// A reflection pass is just a review-branch iteration; there is no
	// separate code path. Clearing any focus lets the next cycle take the
	// review branch, unless a pending conversation is waiting, which the
	// loop takes first.
	s.loop.Focus.Clear()
	c.JSON(http.StatusAccepted, adminActionResult{Dispatched: true, Detail: "focus cleared; the next loop cycle reviews recent conversations unless a pending one is waiting"})
}

func (s *Server) adminProcessConversation(c *gin.Context) {
	id := c.Param("id")
	if u, err := uuid.Parse(id); err != nil || u.Version() != 4 {
		respondValidationError(c, newValidationError("id must be a valid UUID v4"))
		return
	}
	if _, err := s.store.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, convstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody{Error: "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	s.loop.Focus.Set(id)
	c.JSON(http.StatusAccepted, adminActionResult{Dispatched: true, Detail: "focus set; will be processed on the next loop cycle"})
}
