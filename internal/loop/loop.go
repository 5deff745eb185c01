// Package loop implements the Cognitive Loop: the single cooperative
// cycle that ties the energy regulator, conversation store, thought
// buffers, model gateway, and tool registry together.
package loop

import (
	"context"

	"github.com/ivycove/cortex/internal/approval"
	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/energy"
	"github.com/ivycove/cortex/internal/events"
	"github.com/ivycove/cortex/internal/gateway"
	"github.com/ivycove/cortex/internal/logging"
	"github.com/ivycove/cortex/internal/subagent"
	"github.com/ivycove/cortex/internal/thoughts"
	"github.com/ivycove/cortex/internal/tools"
)

const inboundBuffer = 256

// IncomingMessage is what ingress enqueues for the loop to pick up at the
// start of its next iteration.
type IncomingMessage struct {
	RequestID  string
	Content    string
	Budget     *float64
	Approval   *approval.Decision
}

// Loop is the orchestrator. All fields are set once at construction; the
// loop itself runs single-threaded inside Run.
type Loop struct {
	Energy    *energy.Regulator
	Store     *convstore.Store
	Thoughts  *thoughts.Thoughts
	Focus     *tools.Focus
	Registry  *tools.Registry
	Gateway   *gateway.Gateway
	SubAgent  *subagent.SubAgent // nil disables the optional sub-agent
	Events    *events.Publisher  // nil disables event publishing
	External  []string           // extra tool names (external source adapter), appended to both tool sets

	inbound chan IncomingMessage
}

// New constructs a Loop with its inbound queue. Callers set the exported
// component fields on the returned value before calling Run.
func New() *Loop {
	return &Loop{inbound: make(chan IncomingMessage, inboundBuffer)}
}

// Enqueue hands ingress's parsed request to the loop, visible no later
// than the next iteration begins. Mirrors the single-producer/
// single-consumer channel shape the ingress/loop boundary requires.
func (l *Loop) Enqueue(ctx context.Context, msg IncomingMessage) error {
	select {
	case l.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// estimatedNextCallCost is a conservative lower bound used to gate the
// next iteration's inference call: the cheapest tier's nominal cost.
func (l *Loop) estimatedNextCallCost() float64 {
	if l.Gateway == nil || len(l.Gateway.Tiers) == 0 {
		return 1
	}
	cheapest := l.Gateway.Tiers[0].NominalCost
	for _, t := range l.Gateway.Tiers {
		if t.NominalCost < cheapest {
			cheapest = t.NominalCost
		}
	}
	return cheapest
}

// Run executes the loop until ctx is cancelled (e.g. by a stop signal or
// an optional --duration timeout), returning after the current iteration
// completes.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		l.awaitLevel(ctx, l.estimatedNextCallCost())
		l.drainInbound(ctx)
		l.pollSubAgent()

		act := l.chooseAction(ctx)
		l.execute(ctx, act)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// awaitLevel wraps the regulator's blocking wait with the sleep_start/
// sleep_end lifecycle events so an observer can see when the loop
// suspends and for how long, per spec.md §4.9.
func (l *Loop) awaitLevel(ctx context.Context, target float64) {
	l.publish(events.SleepStart, map[string]any{"target": target, "level": l.Energy.Current()})
	l.Energy.AwaitLevel(ctx, target)
	l.publish(events.SleepEnd, map[string]any{"level": l.Energy.Current()})
}

func (l *Loop) drainInbound(ctx context.Context) {
	for {
		select {
		case msg := <-l.inbound:
			l.handleIncoming(ctx, msg)
		default:
			return
		}
	}
}

func (l *Loop) handleIncoming(ctx context.Context, msg IncomingMessage) {
	if msg.Approval != nil {
		if err := approval.Apply(ctx, l.Store, msg.RequestID, *msg.Approval); err != nil {
			logging.Logger().Warn("apply approval decision failed", "request_id", msg.RequestID, "error", err)
			return
		}
		l.publish(events.ConversationStateChanged, map[string]any{
			"request_id": msg.RequestID, "approved": msg.Approval.Approved,
		})
		return
	}
	if err := l.Store.UpsertRequest(ctx, msg.RequestID, msg.Content, msg.Budget); err != nil {
		logging.Logger().Warn("upsert_request failed", "request_id", msg.RequestID, "error", err)
		return
	}
	l.publish(events.ConversationCreated, map[string]any{"request_id": msg.RequestID})
	l.publish(events.MessageAdded, map[string]any{"request_id": msg.RequestID})
}

func (l *Loop) pollSubAgent() {
	if l.SubAgent == nil {
		return
	}
	for {
		select {
		case msg := <-l.SubAgent.Outbound():
			l.handleSubAgentMessage(msg)
		default:
			amount := l.SubAgent.EnergyConsumedSinceLastPoll()
			if amount > 0 {
				l.Energy.Consume(amount)
				l.publish(events.EnergyUpdate, map[string]any{"source": "subagent", "amount": amount})
			}
			return
		}
	}
}

func (l *Loop) handleSubAgentMessage(msg subagent.OutboundMessage) {
	switch msg.Kind {
	case subagent.MessageError:
		l.Thoughts.Review.Push("sub-agent request " + msg.RequestID + " failed")
	case subagent.MessageCompletion:
		l.Thoughts.Review.Push("sub-agent request " + msg.RequestID + " completed")
	}
}

func (l *Loop) publish(name events.Name, data map[string]any) {
	if l.Events == nil {
		return
	}
	l.Events.Publish(events.Event{Name: name, Data: data})
}
