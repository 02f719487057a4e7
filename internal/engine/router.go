package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deskbot/internal/bus"
	"deskbot/internal/domain"
	"deskbot/internal/flow"
)

type OutcomeKind string

const (
	OutcomeAutoReplied OutcomeKind = "auto_replied"
	OutcomeFlowPrompt  OutcomeKind = "flow_prompt"
	OutcomeEscalated   OutcomeKind = "escalated"
	OutcomeIgnored     OutcomeKind = "ignored"
)

// Outcome is the result of routing one inbound message.
type Outcome struct {
	Kind     OutcomeKind
	Reply    string // outbound text for AutoReplied / FlowPrompt
	DialogID int64  // set for Escalated
	Reason   string // set for Ignored
}

// RouterConfig holds the router's collaborators and tuning.
type RouterConfig struct {
	Store       domain.Store
	Sessions    *SessionStore
	Dialogs     *Dialogs
	Matcher     *Matcher
	Flows       *flow.Registry
	Interpreter *Interpreter
	Outbound    domain.Outbound
	Events      *bus.EventBus
	Logger      *slog.Logger

	// DedupeWindow > 0 enables idempotency-key deduplication of
	// at-least-once inbound delivery.
	DedupeWindow time.Duration

	// AbortDeactivated forces sessions mid-flow to abort on their next
	// turn when the flow has been deactivated; otherwise in-flight
	// sessions run to completion.
	AbortDeactivated bool
}

// Router decides, for every inbound message, whether it is answered
// automatically (Q/A match or in-progress flow) or queued for a human,
// and keeps Session and Dialog state consistent while doing so.
//
// All processing for one client is serialized through a per-client
// lock; outbound delivery happens only after the state change and the
// Message append are durably recorded.
type Router struct {
	store       domain.Store
	sessions    *SessionStore
	dialogs     *Dialogs
	matcher     *Matcher
	flows       *flow.Registry
	interpreter *Interpreter
	outbound    domain.Outbound
	events      *bus.EventBus
	logger      *slog.Logger

	locks *clientLocks

	dedupeWindow     time.Duration
	abortDeactivated bool

	seenMu sync.Mutex
	seen   map[string]time.Time // "clientID:key" -> first seen
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		store:            cfg.Store,
		sessions:         cfg.Sessions,
		dialogs:          cfg.Dialogs,
		matcher:          cfg.Matcher,
		flows:            cfg.Flows,
		interpreter:      cfg.Interpreter,
		outbound:         cfg.Outbound,
		events:           cfg.Events,
		logger:           cfg.Logger,
		locks:            newClientLocks(),
		dedupeWindow:     cfg.DedupeWindow,
		abortDeactivated: cfg.AbortDeactivated,
		seen:             make(map[string]time.Time),
	}
}

// HandleInbound routes one client message. idemKey is the platform's
// message id (empty disables the replay guard for this message).
func (r *Router) HandleInbound(ctx context.Context, clientID int64, text string, idemKey string) (Outcome, error) {
	unlock := r.locks.Lock(clientID)
	defer unlock()

	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup client %d: %w", clientID, err)
	}
	if client == nil {
		return Outcome{}, fmt.Errorf("client %d: %w", clientID, domain.ErrNotFound)
	}

	if client.Blocked {
		r.logger.Debug("ignoring message from blocked client", "client_id", clientID)
		return Outcome{Kind: OutcomeIgnored, Reason: "blocked"}, nil
	}

	if r.isDuplicate(clientID, idemKey) {
		r.logger.Debug("ignoring duplicate inbound", "client_id", clientID, "key", idemKey)
		return Outcome{Kind: OutcomeIgnored, Reason: "duplicate"}, nil
	}

	if _, err := r.store.AppendMessage(ctx, domain.Message{
		ClientID:  clientID,
		Direction: domain.DirectionIncoming,
		Body:      text,
		Delivered: true,
		CreatedAt: time.Now(),
	}); err != nil {
		return Outcome{}, fmt.Errorf("append incoming message: %w", err)
	}
	r.events.Emit(bus.Event{
		Type:    bus.EventMessageReceived,
		Source:  "router",
		Payload: map[string]any{"client_id": clientID},
	})

	outcome, err := r.route(ctx, client, text)
	if err != nil {
		return Outcome{}, err
	}

	r.rememberKey(clientID, idemKey)
	return outcome, nil
}

// route runs the decision ladder: active session → flow trigger →
// static Q/A → default flow → escalation.
func (r *Router) route(ctx context.Context, client *domain.Client, text string) (Outcome, error) {
	now := time.Now()

	sess := r.sessions.Get(client.ID)
	if sess != nil && r.sessions.Expired(sess, now) {
		// Lazy reclamation is the same Aborted transition the sweep
		// performs; evaluation then starts fresh.
		r.expireSession(sess)
		sess = nil
	}

	if sess != nil {
		return r.advanceSession(ctx, client, sess, text)
	}

	if def := r.flows.MatchTrigger(text); def != nil {
		return r.startFlow(ctx, client, def)
	}

	if entry := r.matcher.Match(text); entry != nil {
		reply := entry.Answer
		if entry.Warning != "" {
			reply += "\n\n" + entry.Warning
		}
		if err := r.sendReply(ctx, client, reply, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeAutoReplied, Reply: reply}, nil
	}

	if def := r.flows.Default(); def != nil {
		return r.startFlow(ctx, client, def)
	}

	return r.escalate(ctx, client)
}

// advanceSession runs one interpreter turn for a client mid-flow.
func (r *Router) advanceSession(ctx context.Context, client *domain.Client, sess *domain.Session, text string) (Outcome, error) {
	def := r.flows.Get(sess.FlowName)
	if def == nil {
		r.abortSession(sess, "flow removed")
		return r.escalate(ctx, client)
	}
	if !def.Active && r.abortDeactivated {
		r.abortSession(sess, "flow deactivated")
		return r.escalate(ctx, client)
	}

	res := r.interpreter.Advance(def, sess, text)
	switch res.Signal {
	case SignalNone:
		r.sessions.Put(sess)
		if err := r.sendReply(ctx, client, res.Prompt, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeFlowPrompt, Reply: res.Prompt}, nil

	case SignalCompleted:
		r.sessions.Clear(client.ID)
		r.events.Emit(bus.Event{
			Type:    bus.EventFlowCompleted,
			Source:  "router",
			Payload: map[string]any{"client_id": client.ID, "flow": sess.FlowName},
		})
		if res.Prompt != "" {
			if err := r.sendReply(ctx, client, res.Prompt, nil); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Kind: OutcomeAutoReplied, Reply: res.Prompt}, nil

	default: // SignalUnhandled
		r.abortSession(sess, "unhandled input")
		return r.escalate(ctx, client)
	}
}

// startFlow opens a fresh session on the flow's entry step.
func (r *Router) startFlow(ctx context.Context, client *domain.Client, def *domain.FlowDefinition) (Outcome, error) {
	sess := &domain.Session{
		ClientID:  client.ID,
		FlowName:  def.Name,
		Vars:      make(map[string]string),
		StartedAt: time.Now(),
	}

	res := r.interpreter.Enter(def, sess)
	switch res.Signal {
	case SignalCompleted:
		// Single-step flow: answered in one turn, no session to keep.
		if err := r.sendReply(ctx, client, res.Prompt, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeAutoReplied, Reply: res.Prompt}, nil

	case SignalNone:
		r.sessions.Put(sess)
		r.events.Emit(bus.Event{
			Type:    bus.EventFlowStarted,
			Source:  "router",
			Payload: map[string]any{"client_id": client.ID, "flow": def.Name},
		})
		if err := r.sendReply(ctx, client, res.Prompt, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeFlowPrompt, Reply: res.Prompt}, nil

	default:
		return r.escalate(ctx, client)
	}
}

// escalate hands the conversation to the operator queue. End users see
// nothing; the dialog stays new until an operator picks it up.
func (r *Router) escalate(ctx context.Context, client *domain.Client) (Outcome, error) {
	dialog, err := r.dialogs.OpenOrReuse(ctx, client.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeEscalated, DialogID: dialog.ID}, nil
}

// OperatorReply sends an operator-authored message to the dialog's
// client, assigning the dialog to the operator if it is still new.
// Goes through the same per-client serialization as inbound turns.
func (r *Router) OperatorReply(ctx context.Context, dialogID int64, operator *domain.Operator, text string) (*domain.Dialog, error) {
	dialog, err := r.store.GetDialog(ctx, dialogID)
	if err != nil {
		return nil, err
	}
	if dialog == nil {
		return nil, domain.ErrNotFound
	}

	unlock := r.locks.Lock(dialog.ClientID)
	defer unlock()

	dialog, err = r.dialogs.Assign(ctx, dialogID, operator.ID)
	if err != nil {
		return nil, err
	}

	client, err := r.store.GetClient(ctx, dialog.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("client %d: %w", dialog.ClientID, domain.ErrNotFound)
	}

	if err := r.sendReply(ctx, client, text, &operator.ID); err != nil {
		return nil, err
	}
	return dialog, nil
}

// Abort ends the client's session as if it were a turn: an operator
// "reset conversation" action goes through here. Returns true when a
// session was actually cleared.
func (r *Router) Abort(ctx context.Context, clientID int64, reason string) bool {
	unlock := r.locks.Lock(clientID)
	defer unlock()

	sess := r.sessions.Get(clientID)
	if sess == nil {
		return false
	}
	r.abortSession(sess, reason)
	return true
}

// SweepExpired aborts sessions idle beyond the TTL. Each candidate is
// re-checked under its client lock to avoid racing a live turn.
func (r *Router) SweepExpired(ctx context.Context, now time.Time) int {
	swept := 0
	for _, clientID := range r.sessions.ListExpired(now) {
		unlock := r.locks.Lock(clientID)
		sess := r.sessions.Get(clientID)
		if sess != nil && r.sessions.Expired(sess, now) {
			r.expireSession(sess)
			swept++
		}
		unlock()
	}
	r.pruneSeen(now)
	if swept > 0 {
		r.logger.Info("expired sessions swept", "count", swept)
	}
	return swept
}

// sendReply appends the outgoing message and then attempts delivery.
// State is recorded before delivery so an adapter failure never leaves
// it inconsistent with what was decided; the failure is stamped on the
// message instead.
func (r *Router) sendReply(ctx context.Context, client *domain.Client, text string, operatorID *int64) error {
	msgID, err := r.store.AppendMessage(ctx, domain.Message{
		ClientID:   client.ID,
		Direction:  domain.DirectionOutgoing,
		Body:       text,
		OperatorID: operatorID,
		Delivered:  true,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("append outgoing message: %w", err)
	}

	if err := r.outbound.Deliver(ctx, client.PlatformID, text); err != nil {
		r.logger.Warn("outbound delivery failed", "client_id", client.ID, "err", err)
		if markErr := r.store.MarkUndelivered(ctx, msgID); markErr != nil {
			r.logger.Error("cannot mark message undelivered", "message_id", msgID, "err", markErr)
		}
		r.events.Emit(bus.Event{
			Type:    bus.EventDeliveryFailed,
			Source:  "router",
			Payload: map[string]any{"client_id": client.ID, "message_id": msgID},
		})
		return nil
	}

	r.events.Emit(bus.Event{
		Type:    bus.EventMessageSent,
		Source:  "router",
		Payload: map[string]any{"client_id": client.ID, "message_id": msgID},
	})
	return nil
}

// abortSession clears the session and reports it for bookkeeping.
func (r *Router) abortSession(sess *domain.Session, reason string) {
	r.sessions.Clear(sess.ClientID)
	r.logger.Info("session aborted", "client_id", sess.ClientID, "flow", sess.FlowName, "reason", reason)
	r.events.Emit(bus.Event{
		Type:    bus.EventSessionAborted,
		Source:  "router",
		Payload: map[string]any{"client_id": sess.ClientID, "flow": sess.FlowName, "reason": reason},
	})
}

// expireSession is the TTL variant of abortSession.
func (r *Router) expireSession(sess *domain.Session) {
	r.sessions.Clear(sess.ClientID)
	r.logger.Info("session expired", "client_id", sess.ClientID, "flow", sess.FlowName)
	r.events.Emit(bus.Event{
		Type:    bus.EventSessionExpired,
		Source:  "router",
		Payload: map[string]any{"client_id": sess.ClientID, "flow": sess.FlowName},
	})
}

// --- idempotency guard ---

func (r *Router) isDuplicate(clientID int64, key string) bool {
	if key == "" || r.dedupeWindow <= 0 {
		return false
	}
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	seenAt, ok := r.seen[seenKey(clientID, key)]
	return ok && time.Since(seenAt) <= r.dedupeWindow
}

func (r *Router) rememberKey(clientID int64, key string) {
	if key == "" || r.dedupeWindow <= 0 {
		return
	}
	r.seenMu.Lock()
	r.seen[seenKey(clientID, key)] = time.Now()
	r.seenMu.Unlock()
}

func (r *Router) pruneSeen(now time.Time) {
	if r.dedupeWindow <= 0 {
		return
	}
	r.seenMu.Lock()
	for k, at := range r.seen {
		if now.Sub(at) > r.dedupeWindow {
			delete(r.seen, k)
		}
	}
	r.seenMu.Unlock()
}

func seenKey(clientID int64, key string) string {
	return fmt.Sprintf("%d:%s", clientID, key)
}
