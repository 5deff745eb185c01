// Package subagent implements the optional background worker that
// services external-tool-source lifecycle requests independently of the
// cognitive loop, carrying its own energy tally that the loop debits on
// each poll.
package subagent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivycove/cortex/internal/logging"
)

// nominalRate is the sub-agent's nominal energy cost, in units per second
// of wall work, per spec.md §4.8.
const nominalRate = 2.0

const outboundBuffer = 64

// Source is the narrow contract the sub-agent calls out to for executing
// one external-tool-source request. A real deployment wires this to the
// external registry; tests use a fake.
type Source interface {
	Handle(ctx context.Context, req Request) (result string, err error)
}

// SubAgent is a second cooperative loop with its own priority queue (one
// FIFO slice per priority, with no size limit) and energy tally,
// grounded on the same Start/Stop lifecycle shape
// as a store-backed scheduler and the same single-consumer queue-draining
// shape as the runtime dispatcher.
type SubAgent struct {
	source Source
	gate   *EgressGate

	mu       sync.Mutex
	queues   map[Priority][]Request
	status   map[string]*StatusEntry
	consumed float64

	outbound chan OutboundMessage
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// New constructs a SubAgent over source and keeps a reference to gate
// (which may be nil). The sub-agent does not route source's traffic
// through gate itself.
func New(source Source, gate *EgressGate) *SubAgent {
	return &SubAgent{
		source: source,
		gate:   gate,
		queues: map[Priority][]Request{
			PriorityHigh:   nil,
			PriorityMedium: nil,
			PriorityLow:    nil,
		},
		status:   make(map[string]*StatusEntry),
		outbound: make(chan OutboundMessage, outboundBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Submit enqueues a request and returns its id, implementing
// tools.ExternalDispatcher.
func (s *SubAgent) Submit(ctx context.Context, toolName string, argumentsJSON string, priority string) (string, error) {
	p := Priority(priority)
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		p = PriorityMedium
	}

	req := Request{
		ID:            uuid.NewString(),
		Kind:          KindList,
		ToolName:      toolName,
		ArgumentsJSON: argumentsJSON,
		Priority:      p,
	}

	s.mu.Lock()
	s.queues[p] = append(s.queues[p], req)
	s.status[req.ID] = &StatusEntry{State: StateQueued}
	s.mu.Unlock()

	return req.ID, nil
}

// Outbound returns the channel the main loop drains for tagged-union
// status/completion/error/log messages.
func (s *SubAgent) Outbound() <-chan OutboundMessage {
	return s.outbound
}

// Status returns a snapshot of a request's current state.
func (s *SubAgent) Status(id string) (StatusEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.status[id]
	if !ok {
		return StatusEntry{}, false
	}
	return *e, true
}

// EnergyConsumedSinceLastPoll returns and resets the accumulated energy
// debit the main loop should apply to the regulator. Two consecutive
// calls with no intervening work satisfy second == 0, first >= 0.
func (s *SubAgent) EnergyConsumedSinceLastPoll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.consumed
	s.consumed = 0
	return v
}

// Start spawns the background processing goroutine.
func (s *SubAgent) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop signals the background loop to exit and waits for it to finish.
func (s *SubAgent) Stop() {
	close(s.stop)
	<-s.done
}

func (s *SubAgent) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			req, ok := s.dequeue()
			if !ok {
				continue
			}
			s.process(ctx, req)
		}
	}
}

func (s *SubAgent) dequeue() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		q := s.queues[p]
		if len(q) == 0 {
			continue
		}
		req := q[0]
		s.queues[p] = q[1:]
		return req, true
	}
	return Request{}, false
}

func (s *SubAgent) process(ctx context.Context, req Request) {
	s.setState(req.ID, StateInProgress, 0)
	s.publish(OutboundMessage{Kind: MessageStatusUpdate, RequestID: req.ID, Data: StatusEntry{State: StateInProgress}})

	start := time.Now()
	result, err := s.source.Handle(ctx, req)
	elapsed := time.Since(start).Seconds()

	s.mu.Lock()
	s.consumed += elapsed * nominalRate
	s.mu.Unlock()

	if err != nil {
		s.setState(req.ID, StateFailed, 100)
		s.publish(OutboundMessage{Kind: MessageError, RequestID: req.ID, Data: err.Error()})
		logging.Logger().Warn("subagent request failed", "request_id", req.ID, "tool", req.ToolName, "error", err)
		return
	}

	s.setState(req.ID, StateCompleted, 100)
	s.publish(OutboundMessage{Kind: MessageCompletion, RequestID: req.ID, Data: result})
}

func (s *SubAgent) setState(id string, state State, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = &StatusEntry{State: state, Progress: progress}
}

func (s *SubAgent) publish(msg OutboundMessage) {
	select {
	case s.outbound <- msg:
	default:
		logging.Logger().Warn("subagent outbound queue full, dropping message", "kind", msg.Kind, "request_id", msg.RequestID)
	}
}
